// Package config holds the process-wide configuration for the identity
// plugin. A Config is built once at startup and injected into the
// components that need it; nothing in this module reads configuration
// from globals at call time.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// Defaults applied by ApplyDefaults when the corresponding field is empty.
const (
	DefaultCookieName = "idm"
	DefaultPolicy     = "b2c_1a_signupsignin"
	DefaultJourney    = "login"
	DefaultBackToPath = "/"
	DefaultOutbound   = "/login/out"
	DefaultCookieTTL  = 4 * time.Hour
)

// Config configures the identity plugin.
type Config struct {
	// AppDomain is the public origin of this application, e.g.
	// "https://service.example.gov.uk". Outbound links are built on it.
	AppDomain string `json:"appDomain"`

	// IdentityAppURL is the base URL of the identity broker that fronts
	// the upstream identity provider.
	IdentityAppURL string `json:"identityAppUrl"`

	// DiscoveryTemplate is a printf-style template producing the OIDC
	// discovery document URL for a policy. It receives the policy name as
	// its single argument, e.g.
	// "https://broker.example/te/%s/v2.0/.well-known/openid-configuration".
	DiscoveryTemplate string `json:"discoveryTemplate"`

	// ClientID and ClientSecret identify this application at the broker.
	ClientID     string `json:"clientId"`
	ClientSecret Secret `json:"clientSecret"`

	// ServiceID identifies this service within the broker's service
	// registry. Carried on first-stage redirect URLs alongside ClientID.
	ServiceID string `json:"serviceId"`

	// RedirectURI is the callback this application registered with the
	// broker; the broker posts the authorization response to it.
	RedirectURI string `json:"redirectUri"`

	// OutboundPath is the local path that begins an authentication
	// attempt and redirects the user on to the broker.
	OutboundPath string `json:"outboundPath"`

	// CookieName and CookiePassword configure the session cookie. The
	// password is stretched into a signing key; it never appears in the
	// cookie itself.
	CookieName     string `json:"cookieName"`
	CookiePassword Secret `json:"cookiePassword"`

	// CookieTTL bounds the lifetime of issued session cookies.
	CookieTTL time.Duration `json:"cookieTtl"`

	// InsecureCookies disables the Secure cookie attribute. Local
	// development only.
	InsecureCookies bool `json:"insecureCookies"`

	// DefaultPolicy, DefaultJourney and DefaultBackToPath fill in
	// per-attempt values the caller omits.
	DefaultPolicy     string `json:"defaultPolicy"`
	DefaultJourney    string `json:"defaultJourney"`
	DefaultBackToPath string `json:"defaultBackToPath"`
}

// ApplyDefaults fills empty optional fields with the package defaults.
func (c *Config) ApplyDefaults() {
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.CookieTTL == 0 {
		c.CookieTTL = DefaultCookieTTL
	}
	if c.DefaultPolicy == "" {
		c.DefaultPolicy = DefaultPolicy
	}
	if c.DefaultJourney == "" {
		c.DefaultJourney = DefaultJourney
	}
	if c.DefaultBackToPath == "" {
		c.DefaultBackToPath = DefaultBackToPath
	}
	if c.OutboundPath == "" {
		c.OutboundPath = DefaultOutbound
	}
}

// Validate checks that every required field is present and well formed.
// All problems are reported in one aggregate error.
func (c *Config) Validate() error {
	var problems []string

	requireURL := func(field, value string) {
		if value == "" {
			problems = append(problems, fmt.Sprintf("%s is required", field))
			return
		}
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s must be an absolute URL, got %q", field, value))
		}
	}

	requireURL("appDomain", c.AppDomain)
	requireURL("identityAppUrl", c.IdentityAppURL)
	requireURL("redirectUri", c.RedirectURI)

	if c.DiscoveryTemplate == "" {
		problems = append(problems, "discoveryTemplate is required")
	} else if !strings.Contains(c.DiscoveryTemplate, "%s") {
		problems = append(problems, "discoveryTemplate must contain a %s placeholder for the policy name")
	}

	if c.ClientID == "" {
		problems = append(problems, "clientId is required")
	}
	if c.ClientSecret == "" {
		problems = append(problems, "clientSecret is required")
	}
	if c.ServiceID == "" {
		problems = append(problems, "serviceId is required")
	}
	if c.CookiePassword == "" {
		problems = append(problems, "cookiePassword is required")
	} else if len(c.CookiePassword) < 32 {
		problems = append(problems, "cookiePassword must be at least 32 characters")
	}
	if c.OutboundPath != "" && !strings.HasPrefix(c.OutboundPath, "/") {
		problems = append(problems, fmt.Sprintf("outboundPath must start with /, got %q", c.OutboundPath))
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

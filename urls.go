package identity

import (
	"context"
	"fmt"
	"net/url"

	"github.com/TransformCore/defra-identity/provider"
)

// RedirectOptions carries the call-time knobs of the outbound redirect
// generators.
type RedirectOptions struct {
	// State is a caller-supplied correlation identifier. Leave empty to
	// generate a fresh one; supplying one is reserved for trusted
	// internal callers resuming a specific flow.
	State string

	// StateCacheData is merged into the persisted request state. Explicit
	// entries override the computed fields.
	StateCacheData map[string]any

	// RedirectURI overrides the configured callback on the authorization
	// URL.
	RedirectURI string

	// ClientID overrides the configured client identifier on the
	// authorization URL (multi-tenant override).
	ClientID string
}

// outboundBase returns the application's outbound endpoint as a URL.
func (s *Service) outboundBase() *url.URL {
	// AppDomain is validated as an absolute URL at construction.
	u, _ := url.Parse(s.cfg.AppDomain)
	u.Path = s.cfg.OutboundPath
	return u
}

// AuthenticationURL builds a link to the local outbound endpoint carrying
// the flow parameters, for in-app links and further composition. It
// persists nothing; the outbound handler starts the attempt when the link
// is followed.
func (s *Service) AuthenticationURL(backToPath string, p FlowParams) *url.URL {
	p.BackToPath = backToPath
	p = s.defaultedParams(p)

	u := s.outboundBase()
	q := url.Values{}
	q.Set("backToPath", p.BackToPath)
	q.Set("policyName", p.PolicyName)
	q.Set("journey", p.Journey)
	if p.ForceLogin {
		q.Set("forceLogin", forceLoginFlag)
	}
	u.RawQuery = q.Encode()
	return u
}

// GenerateAuthenticationURL is AuthenticationURL serialized to a string.
func (s *Service) GenerateAuthenticationURL(backToPath string, p FlowParams) string {
	return s.AuthenticationURL(backToPath, p).String()
}

// GenerateFirstStageOutboundRedirectURL persists the request state for a
// new attempt and returns the URL the broker uses to bounce the user back
// through this application's outbound endpoint before reaching the
// upstream identity provider.
func (s *Service) GenerateFirstStageOutboundRedirectURL(ctx context.Context, p FlowParams, opts RedirectOptions) (string, error) {
	p = s.defaultedParams(p)

	state, record, err := s.beginAuthAttempt(ctx, p, opts.State, opts.StateCacheData)
	if err != nil {
		return "", err
	}

	u := s.outboundBase()
	q := url.Values{}
	q.Set("redirect_uri", s.cfg.RedirectURI)
	if record.ForceLogin {
		q.Set("forceLogin", forceLoginFlag)
	}
	q.Set("policyName", record.PolicyName)
	q.Set("journey", record.Journey)
	q.Set("state", state)
	q.Set("client_id", s.cfg.ClientID)
	q.Set("serviceId", s.cfg.ServiceID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GenerateFinalOutboundRedirectURL persists the request state for a new
// attempt and returns the broker's authorization URL for it. The protocol
// client builds the base URL; the journey parameter, the prompt=login
// flag for forced logins and any client identifier override are injected
// here, over the parsed query, since the client knows nothing about them.
func (s *Service) GenerateFinalOutboundRedirectURL(ctx context.Context, p FlowParams, opts RedirectOptions) (string, error) {
	p = s.defaultedParams(p)

	state, record, err := s.beginAuthAttempt(ctx, p, opts.State, opts.StateCacheData)
	if err != nil {
		return "", err
	}

	// The persisted record drives the URL: stateCacheData may have
	// overridden the policy or journey, and what the user is sent into
	// must match what the callback resumes.
	client, err := s.clients.Client(ctx, record.PolicyName)
	if err != nil {
		return "", err
	}

	raw, err := client.AuthorizationURL(provider.AuthParams{
		RedirectURI:  opts.RedirectURI,
		ResponseMode: "form_post",
		State:        state,
	})
	if err != nil {
		return "", err
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing authorization url: %w", err)
	}

	q := u.Query()
	q.Set("journey", record.Journey)
	if record.ForceLogin {
		q.Set("prompt", "login")
	}
	if opts.ClientID != "" {
		q.Set("client_id", opts.ClientID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

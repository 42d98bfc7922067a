// Package identity implements the server-side bookkeeping of the
// authentication handshake between an application, the Defra identity
// broker and the upstream identity provider. It generates state-bound
// redirect URLs, persists per-attempt request state under unguessable
// correlation identifiers, resolves cached session credentials from the
// session cookie, refreshes expired tokens through the broker and
// terminates sessions.
//
// The package owns no HTTP routes of its own; the surrounding application
// wires its handlers to these operations.
package identity

import (
	"fmt"
	"net/http"

	"github.com/TransformCore/defra-identity/cache"
	"github.com/TransformCore/defra-identity/config"
	"github.com/TransformCore/defra-identity/cookie"
	"github.com/TransformCore/defra-identity/provider"
)

// TokenStore persists the outcome of a token exchange or refresh as the
// caller's session. The Service provides a default implementation; the
// route layer may supply its own to control key and cookie handling.
type TokenStore interface {
	StoreTokenSetResponse(w http.ResponseWriter, r *http.Request, tokens *provider.TokenSet) error
}

// Service exposes the identity plugin operations. All methods operate on
// one request/response pair; the only shared state is the injected cache.
type Service struct {
	cfg     *config.Config
	store   cache.Cache
	clients provider.ClientFactory
	cookies *cookie.Codec
	tokens  TokenStore
}

// New creates a Service. Defaults are applied to cfg and it is validated
// before use. A nil tokens falls back to the Service's own
// StoreTokenSetResponse.
func New(cfg *config.Config, store cache.Cache, clients provider.ClientFactory, tokens TokenStore) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("identity: config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("identity: cache is required")
	}
	if clients == nil {
		return nil, fmt.Errorf("identity: client factory is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		store:   store,
		clients: clients,
		cookies: cookie.NewCodec(cfg.CookieName, []byte(cfg.CookiePassword), cfg.CookieTTL, !cfg.InsecureCookies),
	}
	if tokens == nil {
		tokens = s
	}
	s.tokens = tokens
	return s, nil
}

// Cookies exposes the session-cookie codec so the route layer can issue
// and clear cookies consistently with the plugin.
func (s *Service) Cookies() *cookie.Codec {
	return s.cookies
}

// Cache keys for the two record kinds. Request state is a one-time
// correlation token; session credentials are keyed by the stable per-user
// subject. The namespaces must never be conflated.
func requestStateKey(state string) string {
	return "attempt:" + state
}

func credentialsKey(sub string) string {
	return "session:" + sub
}

func mustRequest(r *http.Request, op string) {
	if r == nil {
		panic("identity: " + op + " called without a request")
	}
}

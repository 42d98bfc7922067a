package identity

import (
	"fmt"
	"net/http"

	"github.com/TransformCore/defra-identity/provider"
)

// StoreTokenSetResponse is the default TokenStore: it caches the token
// set and its claims as the session credentials, keyed by the claims'
// subject, and refreshes the session cookie to match. The route layer can
// replace it by injecting its own TokenStore at construction.
func (s *Service) StoreTokenSetResponse(w http.ResponseWriter, r *http.Request, tokens *provider.TokenSet) error {
	mustRequest(r, "StoreTokenSetResponse")
	if tokens == nil {
		return fmt.Errorf("identity: token set is required")
	}

	claims := Claims(tokens.Claims)
	sub := claims.Subject()
	if sub == "" {
		return fmt.Errorf("token set claims missing subject")
	}

	creds := SessionCredentials{
		Claims:   claims,
		TokenSet: tokens,
	}
	if err := s.store.Set(r.Context(), credentialsKey(sub), creds); err != nil {
		return fmt.Errorf("persisting session credentials: %w", err)
	}

	return s.cookies.Set(w, map[string]any{"sub": sub})
}

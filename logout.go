package identity

import (
	"fmt"
	"net/http"

	"github.com/TransformCore/defra-identity/internal/log"
)

// Logout terminates the request's session. The session cookie is always
// cleared, even when no cache key can be resolved from it; when a key is
// found, the cached credentials are dropped too. Panics when called
// without a request.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) error {
	mustRequest(r, "Logout")

	// The cookie goes regardless of what the cache cleanup achieves.
	defer s.cookies.Clear(w)

	sub, ok := s.cookies.Subject(r)
	if !ok {
		return nil
	}

	if err := s.store.Drop(r.Context(), credentialsKey(sub)); err != nil {
		return fmt.Errorf("dropping session credentials: %w", err)
	}

	log.LogDebugWithFields("identity", "Session terminated", nil)
	return nil
}

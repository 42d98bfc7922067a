package identity

import (
	"net/http"

	"github.com/TransformCore/defra-identity/internal/log"
)

// RefreshToken exchanges a refresh token for a new token set via the
// protocol client bound to policyName and hands the result to the token
// store for persistence. Exchange failures propagate to the caller
// unmodified; retry policy, if any, belongs there. Panics when called
// without a request.
func (s *Service) RefreshToken(w http.ResponseWriter, r *http.Request, refreshToken, policyName string) error {
	mustRequest(r, "RefreshToken")

	if policyName == "" {
		policyName = s.cfg.DefaultPolicy
	}

	client, err := s.clients.Client(r.Context(), policyName)
	if err != nil {
		return err
	}

	tokens, err := client.Refresh(r.Context(), refreshToken)
	if err != nil {
		return err
	}

	log.LogDebugWithFields("identity", "Refreshed token set", map[string]any{
		"policy": policyName,
	})
	return s.tokens.StoreTokenSetResponse(w, r, tokens)
}

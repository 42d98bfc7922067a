package identity

import (
	"context"
	"fmt"

	"github.com/TransformCore/defra-identity/internal/crypto"
	"github.com/TransformCore/defra-identity/internal/log"
)

// forceLoginFlag is the query-string encoding of an enabled force-login.
// The flag is either this literal or absent; "no"/"false" are never
// emitted.
const forceLoginFlag = "yes"

// decodeForceLogin normalizes a query-style force-login value to a bool.
// Callers historically passed the literal "yes"; anything else is false.
func decodeForceLogin(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == forceLoginFlag
	default:
		return false
	}
}

// FlowParams are the per-attempt parameters of an authentication flow.
// Empty fields are defaulted from configuration.
type FlowParams struct {
	BackToPath string
	PolicyName string
	Journey    string
	ForceLogin bool
}

// RequestState is the record persisted for one in-flight authentication
// attempt, keyed by its correlation identifier. The callback handler
// reads it back to resume the caller's context; the entry expires with
// the cache TTL and is never explicitly deleted here.
type RequestState struct {
	PolicyName string         `json:"policyName"`
	Journey    string         `json:"journey"`
	ForceLogin bool           `json:"forceLogin"`
	BackToPath string         `json:"backToPath"`
	Extra      map[string]any `json:"extra,omitempty"`
}

func (s *Service) defaultedParams(p FlowParams) FlowParams {
	if p.PolicyName == "" {
		p.PolicyName = s.cfg.DefaultPolicy
	}
	if p.Journey == "" {
		p.Journey = s.cfg.DefaultJourney
	}
	if p.BackToPath == "" {
		p.BackToPath = s.cfg.DefaultBackToPath
	}
	return p
}

// beginAuthAttempt persists the request state for one authentication
// attempt and returns its correlation identifier. The computed fields are
// fill-in defaults: explicit extra entries win, so specialized journeys
// can pre-seed fields that later logic reads back. A caller-supplied
// state is honored (trusted internal callers resuming a flow); otherwise
// a fresh random identifier is generated. The record is persisted before
// returning, with no retry on failure.
func (s *Service) beginAuthAttempt(ctx context.Context, p FlowParams, state string, extra map[string]any) (string, *RequestState, error) {
	p = s.defaultedParams(p)

	record := &RequestState{
		PolicyName: p.PolicyName,
		Journey:    p.Journey,
		ForceLogin: p.ForceLogin,
		BackToPath: p.BackToPath,
	}

	for k, v := range extra {
		switch k {
		case "policyName":
			if str, ok := v.(string); ok && str != "" {
				record.PolicyName = str
			}
		case "journey":
			if str, ok := v.(string); ok && str != "" {
				record.Journey = str
			}
		case "backToPath":
			if str, ok := v.(string); ok && str != "" {
				record.BackToPath = str
			}
		case "forceLogin":
			record.ForceLogin = decodeForceLogin(v)
		default:
			if record.Extra == nil {
				record.Extra = make(map[string]any)
			}
			record.Extra[k] = v
		}
	}

	if state == "" {
		generated, err := crypto.GenerateSecureToken()
		if err != nil {
			return "", nil, fmt.Errorf("generating state identifier: %w", err)
		}
		state = generated
	}

	if err := s.store.Set(ctx, requestStateKey(state), record); err != nil {
		return "", nil, fmt.Errorf("persisting request state: %w", err)
	}

	log.LogDebugWithFields("identity", "Persisted authentication attempt", map[string]any{
		"policy":  record.PolicyName,
		"journey": record.Journey,
	})
	return state, record, nil
}

// AuthAttempt fetches the request state persisted under a correlation
// identifier, for the callback handler resuming a flow. Returns
// cache.ErrNotFound when the state is unknown or expired.
func (s *Service) AuthAttempt(ctx context.Context, state string) (*RequestState, error) {
	var record RequestState
	if err := s.store.Get(ctx, requestStateKey(state), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

package identity

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/TransformCore/defra-identity/cache"
	"github.com/TransformCore/defra-identity/provider"
)

// Claims are the decoded identity claims cached for a session.
type Claims map[string]any

// Subject returns the sub claim, or "" when absent or malformed.
func (c Claims) Subject() string {
	sub, _ := c["sub"].(string)
	return sub
}

// Expiry returns the exp claim as a time. ok is false when the claim is
// absent or not a number.
func (c Claims) Expiry() (time.Time, bool) {
	switch exp := c["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0), true
	case int64:
		return time.Unix(exp, 0), true
	case int:
		return time.Unix(int64(exp), 0), true
	case json.Number:
		n, err := exp.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0), true
	default:
		return time.Time{}, false
	}
}

// SessionCredentials is the cached credential record for one
// authenticated user, keyed by the session subject.
type SessionCredentials struct {
	Claims   Claims             `json:"claims"`
	TokenSet *provider.TokenSet `json:"tokenSet"`
}

// Expired reports whether the credentials are expired at the given time.
// A record without claims, or without a usable exp claim, is treated as
// already expired. Expiry is always computed at read time, never cached.
func (sc *SessionCredentials) Expired(now time.Time) bool {
	if len(sc.Claims) == 0 {
		return true
	}
	exp, ok := sc.Claims.Expiry()
	if !ok {
		return true
	}
	return exp.Unix() < now.Unix()
}

// IsExpired reports whether the credentials are expired now.
func (sc *SessionCredentials) IsExpired() bool {
	return sc.Expired(time.Now())
}

// GetCredentials resolves the session credentials cached for the
// request's session cookie. A nil result with a nil error means "no
// session": missing cookie, missing subject claim, malformed cookie and
// absent cache entry all land there. Cache I/O failures are returned
// unmodified. Panics when called without a request.
func (s *Service) GetCredentials(r *http.Request) (*SessionCredentials, error) {
	mustRequest(r, "GetCredentials")

	sub, ok := s.cookies.Subject(r)
	if !ok {
		return nil, nil
	}

	var creds SessionCredentials
	err := s.store.Get(r.Context(), credentialsKey(sub), &creds)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

// GetClaims returns the claims for the request's session, or nil when
// there is no session. It never errors for the no-session case.
func (s *Service) GetClaims(r *http.Request) (Claims, error) {
	creds, err := s.GetCredentials(r)
	if err != nil || creds == nil {
		return nil, err
	}
	return creds.Claims, nil
}

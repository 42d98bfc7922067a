package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TransformCore/defra-identity/provider"
)

func TestExpired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		creds   SessionCredentials
		expired bool
	}{
		{
			name:    "expiry one second ago",
			creds:   SessionCredentials{Claims: Claims{"exp": float64(now.Unix() - 1)}},
			expired: true,
		},
		{
			name:    "expiry an hour away",
			creds:   SessionCredentials{Claims: Claims{"exp": float64(now.Unix() + 3600)}},
			expired: false,
		},
		{
			name:    "expiry exactly now",
			creds:   SessionCredentials{Claims: Claims{"exp": float64(now.Unix())}},
			expired: false,
		},
		{
			name:    "absent claims",
			creds:   SessionCredentials{},
			expired: true,
		},
		{
			name:    "claims without exp",
			creds:   SessionCredentials{Claims: Claims{"sub": "user-123"}},
			expired: true,
		},
		{
			name:    "malformed exp",
			creds:   SessionCredentials{Claims: Claims{"exp": "tomorrow"}},
			expired: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, tt.creds.Expired(now))
		})
	}
}

func TestGetCredentials(t *testing.T) {
	svc, mem, _ := newTestService(t)

	creds := SessionCredentials{
		Claims:   Claims{"sub": "user-123", "exp": float64(time.Now().Unix() + 3600)},
		TokenSet: &provider.TokenSet{AccessToken: "access", RefreshToken: "refresh"},
	}
	require.NoError(t, mem.Set(context.Background(), credentialsKey("user-123"), creds))

	req := authedRequest(t, svc, map[string]any{"sub": "user-123"})
	got, err := svc.GetCredentials(req)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "user-123", got.Claims.Subject())
	assert.Equal(t, "access", got.TokenSet.AccessToken)
	assert.False(t, got.IsExpired())
}

func TestGetCredentialsNoCookie(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	got, err := svc.GetCredentials(req)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetCredentialsCookieWithoutSubject(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := authedRequest(t, svc, map[string]any{"name": "no subject"})
	got, err := svc.GetCredentials(req)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetCredentialsMalformedCookie(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: svc.cookies.Name(), Value: "garbage"})

	got, err := svc.GetCredentials(req)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetCredentialsNoCacheEntry(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := authedRequest(t, svc, map[string]any{"sub": "user-123"})
	got, err := svc.GetCredentials(req)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetCredentialsCacheFailurePropagates(t *testing.T) {
	cacheErr := errors.New("cache down")
	svc, err := New(testServiceConfig(), &failingCache{err: cacheErr}, &fakeFactory{client: &fakeClient{}}, nil)
	require.NoError(t, err)

	req := authedRequest(t, svc, map[string]any{"sub": "user-123"})
	_, err = svc.GetCredentials(req)
	assert.ErrorIs(t, err, cacheErr)
}

func TestGetCredentialsPanicsWithoutRequest(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.Panics(t, func() { _, _ = svc.GetCredentials(nil) })
}

func TestGetClaims(t *testing.T) {
	svc, mem, _ := newTestService(t)

	creds := SessionCredentials{Claims: Claims{"sub": "user-123", "email": "a@b.example"}}
	require.NoError(t, mem.Set(context.Background(), credentialsKey("user-123"), creds))

	req := authedRequest(t, svc, map[string]any{"sub": "user-123"})
	claims, err := svc.GetClaims(req)
	require.NoError(t, err)
	assert.Equal(t, "a@b.example", claims["email"])
}

func TestGetClaimsNoSession(t *testing.T) {
	svc, _, _ := newTestService(t)

	claims, err := svc.GetClaims(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NoError(t, err)
	assert.Nil(t, claims)
}

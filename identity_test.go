package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TransformCore/defra-identity/cache"
	"github.com/TransformCore/defra-identity/config"
	"github.com/TransformCore/defra-identity/provider"
)

// fakeClient emulates the broker-bound protocol client. AuthorizationURL
// serializes its parameters the way a real broker endpoint would, so URL
// post-processing is exercised against a populated query string.
type fakeClient struct {
	lastParams provider.AuthParams
	refreshed  []string
	tokens     *provider.TokenSet
	refreshErr error
}

func (c *fakeClient) AuthorizationURL(params provider.AuthParams) (string, error) {
	c.lastParams = params

	q := url.Values{}
	q.Set("client_id", "configured-client")
	q.Set("state", params.State)
	if params.ResponseMode != "" {
		q.Set("response_mode", params.ResponseMode)
	}
	if params.RedirectURI != "" {
		q.Set("redirect_uri", params.RedirectURI)
	}
	return "https://broker.example.com/authorize?" + q.Encode(), nil
}

func (c *fakeClient) Exchange(_ context.Context, _, _ string) (*provider.TokenSet, error) {
	return c.tokens, nil
}

func (c *fakeClient) Refresh(_ context.Context, refreshToken string) (*provider.TokenSet, error) {
	if c.refreshErr != nil {
		return nil, c.refreshErr
	}
	c.refreshed = append(c.refreshed, refreshToken)
	return c.tokens, nil
}

type fakeFactory struct {
	client     *fakeClient
	lastPolicy string
	err        error
}

func (f *fakeFactory) Client(_ context.Context, policyName string) (provider.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastPolicy = policyName
	return f.client, nil
}

// failingCache returns the same error from every operation.
type failingCache struct {
	err error
}

func (f *failingCache) Get(context.Context, string, any) error { return f.err }
func (f *failingCache) Set(context.Context, string, any) error { return f.err }
func (f *failingCache) Drop(context.Context, string) error     { return f.err }

func testServiceConfig() *config.Config {
	return &config.Config{
		AppDomain:         "https://service.example.com",
		IdentityAppURL:    "https://broker.example.com",
		DiscoveryTemplate: "https://broker.example.com/te/%s/v2.0/.well-known/openid-configuration",
		ClientID:          "client-123",
		ClientSecret:      "secret-456",
		ServiceID:         "service-789",
		RedirectURI:       "https://service.example.com/login/return",
		CookiePassword:    config.Secret(strings.Repeat("p", 32)),
		DefaultPolicy:     "b2c_1a_signupsignin",
		DefaultJourney:    "login",
		DefaultBackToPath: "/account",
	}
}

func newTestService(t *testing.T) (*Service, *cache.Memory, *fakeFactory) {
	t.Helper()

	mem := cache.NewMemory(0)
	factory := &fakeFactory{client: &fakeClient{}}
	svc, err := New(testServiceConfig(), mem, factory, nil)
	require.NoError(t, err)
	return svc, mem, factory
}

// authedRequest builds a request carrying a signed session cookie with the
// given claims.
func authedRequest(t *testing.T, svc *Service, claims map[string]any) *http.Request {
	t.Helper()

	rec := httptest.NewRecorder()
	require.NoError(t, svc.cookies.Set(rec, claims))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

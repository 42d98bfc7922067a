package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/TransformCore/defra-identity/config"
	"github.com/TransformCore/defra-identity/internal/log"
)

// Factory builds and caches one protocol client per policy. Discovery for
// a policy happens once; concurrent first requests for the same policy are
// collapsed with singleflight.
type Factory struct {
	cfg        *config.Config
	httpClient *http.Client

	mu      sync.RWMutex
	clients map[string]Client
	group   singleflight.Group
}

// Ensure Factory implements ClientFactory
var _ ClientFactory = (*Factory)(nil)

// NewFactory creates a client factory for the configured broker.
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clients:    make(map[string]Client),
	}
}

// Client returns the protocol client for policyName, running discovery on
// first use.
func (f *Factory) Client(ctx context.Context, policyName string) (Client, error) {
	if policyName == "" {
		policyName = f.cfg.DefaultPolicy
	}

	f.mu.RLock()
	client, ok := f.clients[policyName]
	f.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := f.group.Do(policyName, func() (any, error) {
		// Re-check under the flight in case another caller won the race.
		f.mu.RLock()
		client, ok := f.clients[policyName]
		f.mu.RUnlock()
		if ok {
			return client, nil
		}

		built, err := f.build(ctx, policyName)
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		f.clients[policyName] = built
		f.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Client), nil
}

// discoveryDocument is the subset of the OIDC discovery document the
// factory needs.
type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

func (f *Factory) build(ctx context.Context, policyName string) (Client, error) {
	discoveryURL := fmt.Sprintf(f.cfg.DiscoveryTemplate, policyName)

	discovery, err := f.fetchDiscovery(ctx, discoveryURL)
	if err != nil {
		return nil, fmt.Errorf("discovering policy %q: %w", policyName, err)
	}

	log.LogDebugWithFields("provider", "Discovered policy endpoints", map[string]any{
		"policy": policyName,
		"issuer": discovery.Issuer,
	})

	// The key set outlives the request that triggered discovery, so it
	// must not inherit that request's cancellation.
	keySet := oidc.NewRemoteKeySet(context.Background(), discovery.JWKSURI)
	verifier := oidc.NewVerifier(discovery.Issuer, keySet, &oidc.Config{
		ClientID: f.cfg.ClientID,
	})

	return &policyClient{
		conf: oauth2.Config{
			ClientID:     f.cfg.ClientID,
			ClientSecret: string(f.cfg.ClientSecret),
			RedirectURL:  f.cfg.RedirectURI,
			Scopes:       []string{oidc.ScopeOpenID, oidc.ScopeOfflineAccess},
			Endpoint: oauth2.Endpoint{
				AuthURL:  discovery.AuthorizationEndpoint,
				TokenURL: discovery.TokenEndpoint,
			},
		},
		verifier: verifier,
	}, nil
}

func (f *Factory) fetchDiscovery(ctx context.Context, discoveryURL string) (*discoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building discovery request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("discovery endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var discovery discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return nil, fmt.Errorf("decoding discovery document: %w", err)
	}

	if discovery.AuthorizationEndpoint == "" || discovery.TokenEndpoint == "" || discovery.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document missing required endpoints")
	}
	return &discovery, nil
}

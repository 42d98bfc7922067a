// Package provider wraps the OIDC protocol client used to talk to the
// identity broker. A Factory hands out one client per authentication
// policy, each backed by the broker's discovery document for that policy.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// TokenSet is the token material returned by the broker's token endpoint,
// together with the identity claims decoded from it.
type TokenSet struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken,omitempty"`
	IDToken      string         `json:"idToken,omitempty"`
	TokenType    string         `json:"tokenType,omitempty"`
	Expiry       time.Time      `json:"expiry,omitempty"`
	Claims       map[string]any `json:"claims,omitempty"`
}

// AuthParams parameterizes an authorization URL.
type AuthParams struct {
	// RedirectURI overrides the configured callback when set.
	RedirectURI string

	// Scopes overrides the configured scopes when non-empty.
	Scopes []string

	// ResponseMode is passed through as the response_mode parameter.
	ResponseMode string

	// State is the correlation identifier bound to this attempt.
	State string
}

// Client is one policy-bound protocol client.
type Client interface {
	// AuthorizationURL builds the broker's authorization endpoint URL.
	AuthorizationURL(params AuthParams) (string, error)

	// Exchange swaps an authorization code for a token set.
	Exchange(ctx context.Context, code, redirectURI string) (*TokenSet, error)

	// Refresh swaps a refresh token for a new token set.
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// ClientFactory hands out policy-bound clients.
type ClientFactory interface {
	Client(ctx context.Context, policyName string) (Client, error)
}

// policyClient implements Client over golang.org/x/oauth2 endpoints taken
// from the policy's discovery document.
type policyClient struct {
	conf     oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func (c *policyClient) AuthorizationURL(params AuthParams) (string, error) {
	conf := c.conf
	if params.RedirectURI != "" {
		conf.RedirectURL = params.RedirectURI
	}
	if len(params.Scopes) > 0 {
		conf.Scopes = params.Scopes
	}

	var opts []oauth2.AuthCodeOption
	if params.ResponseMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", params.ResponseMode))
	}
	return conf.AuthCodeURL(params.State, opts...), nil
}

func (c *policyClient) Exchange(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	conf := c.conf
	if redirectURI != "" {
		conf.RedirectURL = redirectURI
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return c.tokenSet(ctx, token)
}

func (c *policyClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	token, err := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	return c.tokenSet(ctx, token)
}

// tokenSet decodes identity claims out of a raw oauth2 token. When the
// response carries an id_token it is verified against the policy's key
// set; otherwise the claims are recovered, unverified, from the access
// token, which the broker issues as a JWT.
func (c *policyClient) tokenSet(ctx context.Context, token *oauth2.Token) (*TokenSet, error) {
	set := &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}

	if raw, ok := token.Extra("id_token").(string); ok && raw != "" {
		idToken, err := c.verifier.Verify(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("verifying id token: %w", err)
		}
		claims := map[string]any{}
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("decoding id token claims: %w", err)
		}
		set.IDToken = raw
		set.Claims = claims
		return set, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, claims); err == nil {
		set.Claims = claims
	}
	return set, nil
}

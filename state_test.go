package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TransformCore/defra-identity/cache"
)

func TestBeginAuthAttemptRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	params := FlowParams{
		BackToPath: "/documents",
		PolicyName: "b2c_1a_signin",
		Journey:    "apply",
		ForceLogin: true,
	}

	state, _, err := svc.beginAuthAttempt(ctx, params, "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	record, err := svc.AuthAttempt(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, &RequestState{
		PolicyName: "b2c_1a_signin",
		Journey:    "apply",
		ForceLogin: true,
		BackToPath: "/documents",
	}, record)
}

func TestBeginAuthAttemptAppliesDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	state, _, err := svc.beginAuthAttempt(ctx, FlowParams{}, "", nil)
	require.NoError(t, err)

	record, err := svc.AuthAttempt(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "b2c_1a_signupsignin", record.PolicyName)
	assert.Equal(t, "login", record.Journey)
	assert.Equal(t, "/account", record.BackToPath)
	assert.False(t, record.ForceLogin)
}

func TestBeginAuthAttemptExtraOverridesComputedFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	state, _, err := svc.beginAuthAttempt(ctx, FlowParams{PolicyName: "b2c_1a_signin"}, "", map[string]any{
		"policyName": "b2c_1a_passwordreset",
		"forceLogin": "yes",
		"resetToken": "abc123",
	})
	require.NoError(t, err)

	record, err := svc.AuthAttempt(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "b2c_1a_passwordreset", record.PolicyName)
	assert.True(t, record.ForceLogin)
	assert.Equal(t, "abc123", record.Extra["resetToken"])
}

func TestBeginAuthAttemptHonorsSuppliedState(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	state, _, err := svc.beginAuthAttempt(ctx, FlowParams{}, "resumed-state", nil)
	require.NoError(t, err)
	assert.Equal(t, "resumed-state", state)

	_, err = svc.AuthAttempt(ctx, "resumed-state")
	assert.NoError(t, err)
}

func TestBeginAuthAttemptStateIdentifiersDoNotCollide(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		state, _, err := svc.beginAuthAttempt(ctx, FlowParams{}, "", nil)
		require.NoError(t, err)
		seen[state] = struct{}{}
	}
	assert.Len(t, seen, 10000)
}

func TestBeginAuthAttemptPersistFailurePropagates(t *testing.T) {
	cacheErr := errors.New("cache down")
	svc, err := New(testServiceConfig(), &failingCache{err: cacheErr}, &fakeFactory{client: &fakeClient{}}, nil)
	require.NoError(t, err)

	_, _, err = svc.beginAuthAttempt(context.Background(), FlowParams{}, "", nil)
	assert.ErrorIs(t, err, cacheErr)
}

func TestAuthAttemptUnknownState(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.AuthAttempt(context.Background(), "never-issued")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestDecodeForceLogin(t *testing.T) {
	assert.True(t, decodeForceLogin(true))
	assert.True(t, decodeForceLogin("yes"))
	assert.False(t, decodeForceLogin(false))
	assert.False(t, decodeForceLogin("no"))
	assert.False(t, decodeForceLogin("true"))
	assert.False(t, decodeForceLogin(nil))
	assert.False(t, decodeForceLogin(1))
}

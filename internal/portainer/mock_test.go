package portainer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appbridge/appbridge/internal/deploy"
)

func TestMockClient_DeployAndList(t *testing.T) {
	mock := NewMockClient()
	ctx := context.Background()

	first, err := mock.DeployStack(ctx, &deploy.Payload{StackName: "jellyfin", EndpointID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 1, first.Status)

	second, err := mock.DeployStack(ctx, &deploy.Payload{StackName: "gitea"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)

	stacks, err := mock.ListStacks(ctx)
	require.NoError(t, err)
	require.Len(t, stacks, 2)
	assert.Equal(t, "jellyfin", stacks[0].Name)
	assert.Equal(t, "gitea", stacks[1].Name)

	assert.Equal(t, "gitea", mock.LastDeploy().StackName)
	deployed, _, _ := mock.Stats()
	assert.Equal(t, 2, deployed)
}

func TestMockClient_DuplicateName(t *testing.T) {
	mock := NewMockClient()
	ctx := context.Background()

	_, err := mock.DeployStack(ctx, &deploy.Payload{StackName: "jellyfin"})
	require.NoError(t, err)

	_, err = mock.DeployStack(ctx, &deploy.Payload{StackName: "jellyfin"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.StatusCode)
}

func TestMockClient_DeleteStack(t *testing.T) {
	mock := NewMockClient()
	ctx := context.Background()

	stack, err := mock.DeployStack(ctx, &deploy.Payload{StackName: "jellyfin"})
	require.NoError(t, err)

	require.NoError(t, mock.DeleteStack(ctx, stack.ID))

	err = mock.DeleteStack(ctx, stack.ID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
}

func TestMockClient_ForceErrorAndReset(t *testing.T) {
	mock := NewMockClient()
	ctx := context.Background()
	boom := errors.New("backend down")

	mock.ForceError(boom)
	_, err := mock.DeployStack(ctx, &deploy.Payload{StackName: "jellyfin"})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, mock.ValidateConnection(ctx), boom)

	mock.Reset()
	require.NoError(t, mock.ValidateConnection(ctx))

	stack, err := mock.DeployStack(ctx, &deploy.Payload{StackName: "jellyfin"})
	require.NoError(t, err)
	assert.Equal(t, 1, stack.ID, "ids restart after reset")

	deployed, deleted, validated := mock.Stats()
	assert.Equal(t, 1, deployed)
	assert.Equal(t, 0, deleted)
	assert.Equal(t, 1, validated)
}

func TestSelector_Modes(t *testing.T) {
	real := NewMockClient()

	t.Run("auto without real client", func(t *testing.T) {
		s := NewSelector("auto", nil, false)
		assert.Equal(t, "mock", s.EffectiveMode())
		assert.Same(t, s.Mock(), s.Current().(*MockClient))
	})

	t.Run("auto with real client", func(t *testing.T) {
		s := NewSelector("auto", real, false)
		assert.Equal(t, "real", s.EffectiveMode())
	})

	t.Run("auto with force mock", func(t *testing.T) {
		s := NewSelector("auto", real, true)
		assert.Equal(t, "mock", s.EffectiveMode())

		assert.Equal(t, "real", s.SetForceMock(false))
		assert.False(t, s.ForceMock())
	})

	t.Run("mock mode ignores real client", func(t *testing.T) {
		s := NewSelector("mock", real, false)
		assert.Equal(t, "mock", s.EffectiveMode())
	})

	t.Run("real mode falls back while unconfigured", func(t *testing.T) {
		s := NewSelector("real", nil, false)
		assert.Equal(t, "mock", s.EffectiveMode())

		s.SetReal(real)
		assert.Equal(t, "real", s.EffectiveMode())
	})
}

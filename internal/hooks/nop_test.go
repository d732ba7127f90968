package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/partigroup/types"
)

func TestNewNop(t *testing.T) {
	h := NewNop()
	ctx := t.Context()

	require.NoError(t, h.OnPartitionsChanged(ctx, "orders", "sub", types.NewPartitionSet(1)))
	require.NoError(t, h.OnLeadershipChanged(ctx, "g", types.RoleLeader))
	require.NoError(t, h.OnError(ctx, errors.New("boom")))
}

func TestWithDefaults(t *testing.T) {
	t.Run("nil hooks", func(t *testing.T) {
		h := WithDefaults(nil)
		require.NotNil(t, h.OnPartitionsChanged)
		require.NotNil(t, h.OnLeadershipChanged)
		require.NotNil(t, h.OnError)
	})

	t.Run("keeps provided callbacks", func(t *testing.T) {
		called := false
		h := WithDefaults(&types.Hooks{
			OnError: func(context.Context, error) error {
				called = true
				return nil
			},
		})

		require.NoError(t, h.OnError(t.Context(), errors.New("x")))
		require.True(t, called)
		require.NoError(t, h.OnLeadershipChanged(t.Context(), "g", types.RoleFollower))
	})
}

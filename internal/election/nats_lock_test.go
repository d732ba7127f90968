package election

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/partigroup/internal/keys"
	partitest "github.com/arloliu/partigroup/testing"
	"github.com/arloliu/partigroup/types"
)

func TestNATSLock_AcquireRenewRelease(t *testing.T) {
	_, nc := partitest.StartEmbeddedNATS(t)
	kv := partitest.CreateJetStreamKV(t, nc, "election", 5*time.Second)
	ctx := t.Context()

	a := NewNATSLock(kv, "orders")
	b := NewNATSLock(kv, "orders")

	t.Run("first acquirer wins", func(t *testing.T) {
		ok, err := a.Acquire(ctx, "m1")
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, a.IsHeld())

		ok, err = b.Acquire(ctx, "m2")
		require.NoError(t, err)
		require.False(t, ok)
		require.False(t, b.IsHeld())

		holder, err := b.Holder(ctx)
		require.NoError(t, err)
		require.Equal(t, "m1", holder)
	})

	t.Run("holder renews", func(t *testing.T) {
		require.NoError(t, a.Renew(ctx))
		require.NoError(t, a.Renew(ctx))
	})

	t.Run("non-holder cannot renew", func(t *testing.T) {
		require.ErrorIs(t, b.Renew(ctx), types.ErrNotLeader)
	})

	t.Run("release frees the lease", func(t *testing.T) {
		require.NoError(t, a.Release(ctx))
		require.False(t, a.IsHeld())

		holder, err := a.Holder(ctx)
		require.NoError(t, err)
		require.Empty(t, holder)

		ok, err := b.Acquire(ctx, "m2")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("release without holding is a no-op", func(t *testing.T) {
		require.NoError(t, a.Release(ctx))
	})
}

func TestNATSLock_RenewAfterTakeoverFails(t *testing.T) {
	_, nc := partitest.StartEmbeddedNATS(t)
	kv := partitest.CreateJetStreamKV(t, nc, "election", 5*time.Second)
	ctx := t.Context()

	a := NewNATSLock(kv, "orders")
	ok, err := a.Acquire(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate expiry followed by another member taking over.
	require.NoError(t, kv.Delete(ctx, keys.Leader("orders")))
	b := NewNATSLock(kv, "orders")
	ok, err = b.Acquire(ctx, "m2")
	require.NoError(t, err)
	require.True(t, ok)

	err = a.Renew(ctx)
	require.ErrorIs(t, err, types.ErrLeadershipLost)
	require.False(t, a.IsHeld())

	t.Run("stale release leaves new holder alone", func(t *testing.T) {
		a.setHeld("m1", 1)
		require.NoError(t, a.Release(ctx))

		holder, err := b.Holder(ctx)
		require.NoError(t, err)
		require.Equal(t, "m2", holder)
	})
}

func TestNATSLock_ExpiredLeaseIsReclaimable(t *testing.T) {
	_, nc := partitest.StartEmbeddedNATS(t)
	kv := partitest.CreateJetStreamKV(t, nc, "election", 300*time.Millisecond)
	ctx := t.Context()

	a := NewNATSLock(kv, "orders")
	ok, err := a.Acquire(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	b := NewNATSLock(kv, "orders")
	require.Eventually(t, func() bool {
		ok, err := b.Acquire(ctx, "m2")
		return err == nil && ok
	}, 5*time.Second, 50*time.Millisecond)
}

func TestNATSLock_SameHolderReclaims(t *testing.T) {
	_, nc := partitest.StartEmbeddedNATS(t)
	kv := partitest.CreateJetStreamKV(t, nc, "election", 5*time.Second)
	ctx := t.Context()

	a := NewNATSLock(kv, "orders")
	ok, err := a.Acquire(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	// A renew failure clears local state while the key still names m1.
	a.clear()

	ok, err = a.Acquire(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, a.Renew(ctx))
}

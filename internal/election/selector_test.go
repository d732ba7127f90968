package election

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	partitest "github.com/arloliu/partigroup/testing"
	"github.com/arloliu/partigroup/types"
)

type roleRecorder struct {
	selected atomic.Int32
	removed  atomic.Int32
}

func (r *roleRecorder) onSelected(context.Context) { r.selected.Add(1) }
func (r *roleRecorder) onRemoved()                 { r.removed.Add(1) }

func TestLeaderSelector_SingleLeader(t *testing.T) {
	_, nc := partitest.StartEmbeddedNATS(t)
	kv := partitest.CreateJetStreamKV(t, nc, "election", 2*time.Second)
	ctx := t.Context()

	var active atomic.Int32
	var overlap atomic.Bool

	const n = 5
	selectors := make([]*LeaderSelector, n)
	for i := range n {
		s := NewLeaderSelector(NewNATSLock(kv, "orders"), fmt.Sprintf("m%d", i), 10*time.Millisecond, 200*time.Millisecond, nil)
		selectors[i] = s
		require.NoError(t, s.Start(ctx,
			func(context.Context) {
				if active.Add(1) > 1 {
					overlap.Store(true)
				}
			},
			func() { active.Add(-1) },
		))
	}

	require.Eventually(t, func() bool { return active.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Stop the current leader repeatedly; a successor must take over each time.
	for range n - 1 {
		var leader *LeaderSelector
		for _, s := range selectors {
			if s.IsLeader() {
				leader = s
			}
		}
		require.NotNil(t, leader)
		require.NoError(t, leader.Stop())

		require.Eventually(t, func() bool {
			return active.Load() == 1
		}, 2*time.Second, 10*time.Millisecond)
	}

	for _, s := range selectors {
		require.NoError(t, s.Stop())
	}
	require.Equal(t, int32(0), active.Load())
	require.False(t, overlap.Load(), "two selectors were leader at the same time")
}

func TestLeaderSelector_StopReleasesLease(t *testing.T) {
	_, nc := partitest.StartEmbeddedNATS(t)
	kv := partitest.CreateJetStreamKV(t, nc, "election", time.Minute)
	ctx := t.Context()

	lock := NewNATSLock(kv, "orders")
	rec := &roleRecorder{}
	s := NewLeaderSelector(lock, "m1", 10*time.Millisecond, 100*time.Millisecond, partitest.NewTestLogger(t))
	require.NoError(t, s.Start(ctx, rec.onSelected, rec.onRemoved))

	require.Eventually(t, s.IsLeader, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	require.False(t, s.IsLeader())
	require.Equal(t, int32(1), rec.selected.Load())
	require.Equal(t, int32(1), rec.removed.Load())

	holder, err := lock.Holder(ctx)
	require.NoError(t, err)
	require.Empty(t, holder)
}

// flakyLock fails renewals on demand.
type flakyLock struct {
	mu        sync.Mutex
	held      bool
	failRenew bool
	acquires  int
}

func (l *flakyLock) Acquire(context.Context, string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
	l.acquires++

	return true, nil
}

func (l *flakyLock) Renew(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failRenew {
		l.failRenew = false
		l.held = false

		return fmt.Errorf("%w: %w", types.ErrLeadershipLost, errors.New("revision mismatch"))
	}

	return nil
}

func (l *flakyLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false

	return nil
}

func (l *flakyLock) Holder(context.Context) (string, error) { return "", nil }

func (l *flakyLock) failNextRenew() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failRenew = true
}

func (l *flakyLock) acquireCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.acquires
}

func TestLeaderSelector_RenewFailureRemovesOnceAndReacquires(t *testing.T) {
	lock := &flakyLock{}
	rec := &roleRecorder{}

	var leaderCtxs []context.Context
	var mu sync.Mutex
	s := NewLeaderSelector(lock, "m1", 10*time.Millisecond, 20*time.Millisecond, nil)
	require.NoError(t, s.Start(t.Context(),
		func(ctx context.Context) {
			mu.Lock()
			leaderCtxs = append(leaderCtxs, ctx)
			mu.Unlock()
			rec.onSelected(ctx)
		},
		rec.onRemoved,
	))
	t.Cleanup(func() { _ = s.Stop() })

	require.Eventually(t, func() bool { return rec.selected.Load() == 1 }, time.Second, 5*time.Millisecond)

	lock.failNextRenew()

	require.Eventually(t, func() bool { return rec.selected.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), rec.removed.Load())
	require.Equal(t, 2, lock.acquireCount())

	mu.Lock()
	require.Error(t, leaderCtxs[0].Err(), "first leadership context must be cancelled")
	require.NoError(t, leaderCtxs[1].Err())
	mu.Unlock()
}

func TestLeaderSelector_StartTwice(t *testing.T) {
	s := NewLeaderSelector(&flakyLock{}, "m1", time.Second, time.Second, nil)
	require.NoError(t, s.Start(t.Context(), nil, nil))
	require.ErrorIs(t, s.Start(t.Context(), nil, nil), types.ErrAlreadyStarted)
	require.NoError(t, s.Stop())
}

package election

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/partigroup/internal/logging"
	"github.com/arloliu/partigroup/internal/natsutil"
	"github.com/arloliu/partigroup/types"
)

// SelectedFunc is called when the selector becomes leader. leaderCtx is
// cancelled as soon as leadership ends. The call must not block.
type SelectedFunc func(leaderCtx context.Context)

// RemovedFunc is called exactly once after every SelectedFunc call, when
// leadership ends for any reason.
type RemovedFunc func()

// LeaderSelector runs the acquire/renew loop on a lease lock.
type LeaderSelector struct {
	lock          types.LeaseLock
	memberID      string
	pollInterval  time.Duration
	renewInterval time.Duration
	logger        types.Logger

	onSelected SelectedFunc
	onRemoved  RemovedFunc

	leader atomic.Bool

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLeaderSelector creates a selector.
//
// Parameters:
//   - lock: Lease lock of the group
//   - memberID: Holder id written into the lease
//   - pollInterval: Delay between acquisition attempts while follower
//   - renewInterval: Delay between renewals while leader, well below the lease duration
//   - logger: Logger (nil for no-op)
//
// Returns:
//   - *LeaderSelector: A selector that is not yet started
func NewLeaderSelector(lock types.LeaseLock, memberID string, pollInterval, renewInterval time.Duration, logger types.Logger) *LeaderSelector {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &LeaderSelector{
		lock:          lock,
		memberID:      memberID,
		pollInterval:  pollInterval,
		renewInterval: renewInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the election loop.
//
// Parameters:
//   - ctx: Loop lifetime; cancelling it behaves like Stop without waiting
//   - onSelected: Called on every acquisition
//   - onRemoved: Called once per acquisition when it ends
func (s *LeaderSelector) Start(ctx context.Context, onSelected SelectedFunc, onRemoved RemovedFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return types.ErrAlreadyStarted
	}
	s.started = true
	s.onSelected = onSelected
	s.onRemoved = onRemoved

	go s.run(ctx)

	return nil
}

// Stop ends the loop, releases the lease if held and waits for onRemoved
// to return. It is idempotent.
func (s *LeaderSelector) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	wasStarted := s.started
	s.mu.Unlock()

	if !wasStarted {
		return nil
	}

	close(s.stopCh)
	<-s.doneCh

	return nil
}

// IsLeader reports whether the selector currently holds leadership.
func (s *LeaderSelector) IsLeader() bool {
	return s.leader.Load()
}

func (s *LeaderSelector) run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		if s.acquire(ctx) {
			if !s.lead(ctx) {
				return
			}

			continue
		}

		if !s.wait(ctx, s.pollInterval) {
			return
		}
	}
}

func (s *LeaderSelector) acquire(ctx context.Context) bool {
	callCtx, cancel := context.WithTimeout(ctx, leaseTimeout(s.renewInterval))
	defer cancel()

	ok, err := s.lock.Acquire(callCtx, s.memberID)
	if err != nil {
		if ctx.Err() == nil {
			s.logFailure("leader lease acquisition failed", err)
		}

		return false
	}

	return ok
}

// lead holds leadership until renewal fails (returns true, caller retries)
// or the selector is stopping (returns false). On stop, onRemoved runs
// before the lease is released so no successor can be selected while this
// member still acts as leader.
func (s *LeaderSelector) lead(ctx context.Context) bool {
	leaderCtx, cancel := context.WithCancel(ctx)
	s.leader.Store(true)
	s.logger.Info("acquired leadership", "member", s.memberID)
	if s.onSelected != nil {
		s.onSelected(leaderCtx)
	}

	stepDown := func() {
		cancel()
		s.leader.Store(false)
		if s.onRemoved != nil {
			s.onRemoved()
		}
	}

	ticker := time.NewTicker(s.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			stepDown()
			s.release()
			return false
		case <-ctx.Done():
			stepDown()
			s.release()
			return false
		case <-ticker.C:
			renewCtx, renewCancel := context.WithTimeout(ctx, leaseTimeout(s.renewInterval))
			err := s.lock.Renew(renewCtx)
			renewCancel()

			if err != nil {
				s.logger.Warn("lost leadership", "member", s.memberID, "error", err)
				stepDown()
				return true
			}
		}
	}
}

func (s *LeaderSelector) release() {
	ctx, cancel := context.WithTimeout(context.Background(), leaseTimeout(s.renewInterval))
	defer cancel()

	if err := s.lock.Release(ctx); err != nil {
		s.logger.Warn("failed to release leadership, lease will expire", "member", s.memberID, "error", err)
		return
	}
	s.logger.Info("released leadership", "member", s.memberID)
}

func (s *LeaderSelector) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *LeaderSelector) logFailure(msg string, err error) {
	if natsutil.IsConnectivityError(err) {
		s.logger.Warn(msg, "member", s.memberID, "error", err)
		return
	}
	s.logger.Error(msg, "member", s.memberID, "error", err)
}

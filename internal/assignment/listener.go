package assignment

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/partigroup/internal/logging"
	"github.com/arloliu/partigroup/internal/natsutil"
	"github.com/arloliu/partigroup/types"
)

// ChangeFunc receives a member's new partition set.
type ChangeFunc func(ctx context.Context, partitions types.PartitionSet)

// Listener polls one member's assignment record and reports changes.
//
// The first successful read is always reported, so an initially empty
// assignment is observable. After that only real set changes are reported.
// A failed read skips the cycle.
type Listener struct {
	manager  *Manager
	groupID  string
	memberID string
	interval time.Duration
	timeout  time.Duration
	onChange ChangeFunc
	logger   types.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	last     types.PartitionSet
	reported bool
}

// NewListener creates a listener for one member.
//
// Parameters:
//   - manager: Assignment manager to read through
//   - groupID: Group id
//   - memberID: Member whose record is watched
//   - interval: Poll interval
//   - onChange: Called from the poll goroutine on every change
//   - logger: Logger (nil for no-op)
func NewListener(manager *Manager, groupID, memberID string, interval time.Duration, onChange ChangeFunc, logger types.Logger) *Listener {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Listener{
		manager:  manager,
		groupID:  groupID,
		memberID: memberID,
		interval: interval,
		timeout:  interval,
		onChange: onChange,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetOperationTimeout bounds each read. Defaults to the poll interval.
func (l *Listener) SetOperationTimeout(d time.Duration) {
	if d > 0 {
		l.timeout = d
	}
}

// Start begins polling. The first read happens immediately.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started || l.stopped {
		return types.ErrAlreadyStarted
	}
	l.started = true

	go l.run(ctx)

	return nil
}

// Stop halts polling and waits for an in-flight callback to finish. It is
// idempotent.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	wasStarted := l.started
	l.mu.Unlock()

	if !wasStarted {
		return nil
	}

	close(l.stopCh)
	<-l.doneCh

	return nil
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.poll(ctx)

	for {
		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.poll(ctx)
		}
	}
}

func (l *Listener) poll(ctx context.Context) {
	readCtx, cancel := context.WithTimeout(ctx, l.timeout)
	partitions, err := l.manager.ReadAssignment(readCtx, l.groupID, l.memberID)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if natsutil.IsConnectivityError(err) {
			l.logger.Warn("assignment read failed, keeping current partitions", "group", l.groupID, "member", l.memberID, "error", err)
		} else {
			l.logger.Error("assignment read failed, keeping current partitions", "group", l.groupID, "member", l.memberID, "error", err)
		}

		return
	}

	if l.reported && partitions.Equal(l.last) {
		return
	}

	l.logger.Debug("assignment changed", "group", l.groupID, "member", l.memberID, "previous", l.last.String(), "current", partitions.String())
	l.last = partitions
	l.reported = true

	if l.onChange != nil {
		l.onChange(ctx, partitions)
	}
}

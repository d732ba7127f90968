// Package membership derives the live member set of a group from the
// members' liveness keys.
package membership

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/internal/keys"
	"github.com/arloliu/partigroup/internal/kvutil"
	"github.com/arloliu/partigroup/internal/logging"
	"github.com/arloliu/partigroup/internal/metrics"
	"github.com/arloliu/partigroup/internal/natsutil"
	"github.com/arloliu/partigroup/types"
)

// watchDebounce coalesces bursts of watcher events into one poll.
const watchDebounce = 20 * time.Millisecond

// ChangeFunc receives the new live member set, sorted ascending.
type ChangeFunc func(ctx context.Context, members []string)

// Manager polls the heartbeat bucket and reports membership changes.
//
// Guarantees:
//   - the first successful poll is always reported, even when empty
//   - later polls are reported only when the set actually changed
//   - a failed scan skips the cycle and is never reported as an empty group
//
// When watching is enabled, key writes and deletes observed through a KV
// watcher trigger an early poll. Expiry produces no watch event, so the
// poll ticker stays the authoritative detector.
type Manager struct {
	kv       jetstream.KeyValue
	groupID  string
	interval time.Duration
	timeout  time.Duration
	onChange ChangeFunc
	logger   types.Logger
	metrics  types.MetricsCollector
	watch    bool

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	last     []string
	reported bool
}

// New creates a membership manager.
//
// Parameters:
//   - kv: Heartbeat bucket
//   - groupID: Group to track
//   - interval: Poll interval
//   - onChange: Called from the poll goroutine on every change
//   - logger: Logger (nil for no-op)
//
// Returns:
//   - *Manager: A manager that is not yet started
func New(kv jetstream.KeyValue, groupID string, interval time.Duration, onChange ChangeFunc, logger types.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Manager{
		kv:       kv,
		groupID:  groupID,
		interval: interval,
		timeout:  interval,
		onChange: onChange,
		logger:   logger,
		metrics:  metrics.NewNop(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetMetrics sets the metrics collector. Must be called before Start.
func (m *Manager) SetMetrics(mc types.MetricsCollector) {
	if mc != nil {
		m.metrics = mc
	}
}

// SetOperationTimeout bounds each scan. Defaults to the poll interval.
func (m *Manager) SetOperationTimeout(d time.Duration) {
	if d > 0 {
		m.timeout = d
	}
}

// EnableWatch turns on watcher-triggered early polls. Must be called before Start.
func (m *Manager) EnableWatch() {
	m.watch = true
}

// Start begins polling in a background goroutine. The first poll runs
// immediately. The loop ends on Stop or when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.stopped {
		return types.ErrAlreadyStarted
	}
	m.started = true

	go m.run(ctx)

	return nil
}

// Stop halts polling and waits for the poll goroutine to exit. It is
// idempotent, and a callback already in progress completes first.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	wasStarted := m.started
	m.mu.Unlock()

	if !wasStarted {
		return nil
	}

	close(m.stopCh)
	<-m.doneCh

	return nil
}

// Members scans the heartbeat bucket once and returns the sorted live
// member ids, bypassing change detection.
func (m *Manager) Members(ctx context.Context) ([]string, error) {
	defer kvutil.Observe(m.metrics, "keys", time.Now())

	found, err := kvutil.ListKeys(ctx, m.kv, keys.HeartbeatFilter(m.groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to scan members of %s: %w", m.groupID, err)
	}

	members := make([]string, 0, len(found))
	for _, key := range found {
		if id := keys.MemberFromHeartbeat(key); id != "" {
			members = append(members, id)
		}
	}
	slices.Sort(members)

	return slices.Compact(members), nil
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneCh)

	wake := make(chan struct{}, 1)
	if m.watch {
		m.startWatcher(ctx, wake)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.poll(ctx)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		case <-wake:
			m.poll(ctx)
		}
	}
}

func (m *Manager) poll(ctx context.Context) {
	scanCtx, cancel := context.WithTimeout(ctx, m.timeout)
	members, err := m.Members(scanCtx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if natsutil.IsConnectivityError(err) {
			m.logger.Warn("membership scan failed, keeping last snapshot", "group", m.groupID, "error", err)
		} else {
			m.logger.Error("membership scan failed, keeping last snapshot", "group", m.groupID, "error", err)
		}

		return
	}

	if m.reported && slices.Equal(members, m.last) {
		return
	}

	m.logger.Debug("membership changed", "group", m.groupID, "previous", m.last, "current", members)
	m.last = members
	m.reported = true
	m.metrics.RecordActiveMembers(m.groupID, len(members))

	if m.onChange != nil {
		m.onChange(ctx, slices.Clone(members))
	}
}

// startWatcher forwards heartbeat key changes to wake, debounced. Only
// updates that can change the member set (new members, deletes) count;
// refreshes of known members are ignored.
func (m *Manager) startWatcher(ctx context.Context, wake chan<- struct{}) {
	watcher, err := m.kv.Watch(ctx, keys.HeartbeatFilter(m.groupID), jetstream.UpdatesOnly())
	if err != nil {
		m.logger.Warn("failed to start membership watcher, polling only", "group", m.groupID, "error", err)
		return
	}

	known := make(map[string]struct{})
	for _, id := range m.last {
		known[id] = struct{}{}
	}

	go func() {
		defer func() { _ = watcher.Stop() }()

		debounce := time.NewTimer(watchDebounce)
		debounce.Stop()
		defer debounce.Stop()

		for {
			select {
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue
				}

				id := keys.MemberFromHeartbeat(entry.Key())
				_, isKnown := known[id]
				switch entry.Operation() {
				case jetstream.KeyValuePut:
					if isKnown {
						continue
					}
					known[id] = struct{}{}
				default:
					delete(known, id)
				}
				debounce.Reset(watchDebounce)
			case <-debounce.C:
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}
	}()
}

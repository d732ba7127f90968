package heartbeat

import (
	"context"
	"fmt"
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

// stopDeleteTimeout bounds the best-effort key removal in Stop.
const stopDeleteTimeout = 2 * time.Second

// GroupMember refreshes one member's liveness key at a fixed interval.
//
// Refresh failures are logged and retried on the next tick; they never stop
// the loop. If failures persist past the bucket TTL the key expires and the
// rest of the group treats the member as gone.
type GroupMember struct {
	kv       jetstream.KeyValue
	groupID  string
	memberID string
	interval time.Duration
	timeout  time.Duration
	logger   types.Logger
	metrics  types.MetricsCollector

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a group member.
//
// The bucket behind kv must have a TTL comfortably larger than interval
// (at least twice) so one late refresh does not evict the member.
//
// Parameters:
//   - kv: Heartbeat bucket
//   - groupID: Group the member belongs to
//   - memberID: Member id
//   - interval: Refresh interval
//   - logger: Logger (nil for no-op)
//
// Returns:
//   - *GroupMember: A member that is not yet started
func New(kv jetstream.KeyValue, groupID, memberID string, interval time.Duration, logger types.Logger) *GroupMember {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &GroupMember{
		kv:       kv,
		groupID:  groupID,
		memberID: memberID,
		interval: interval,
		timeout:  interval,
		logger:   logger,
		metrics:  metrics.NewNop(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetMetrics sets the metrics collector. Must be called before Start.
func (m *GroupMember) SetMetrics(mc types.MetricsCollector) {
	if mc != nil {
		m.metrics = mc
	}
}

// SetOperationTimeout bounds each refresh write. Defaults to the interval.
func (m *GroupMember) SetOperationTimeout(d time.Duration) {
	if d > 0 {
		m.timeout = d
	}
}

// Start writes the liveness key once and then keeps refreshing it.
//
// The first write is attempted synchronously, bounded by the operation
// timeout. A failed first write is logged like any other refresh failure and
// retried by the loop; the member simply counts as absent until a write
// succeeds.
//
// Returns:
//   - error: types.ErrAlreadyStarted
func (m *GroupMember) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.stopped {
		return types.ErrAlreadyStarted
	}

	opCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.refresh(opCtx)
	cancel()
	if err != nil {
		m.logFailure(err)
	}

	m.started = true
	go m.loop()

	return nil
}

// Stop halts the refresh loop and deletes the liveness key so the group
// notices the departure without waiting for the TTL.
//
// Stop is idempotent. A failed delete is returned for logging only; the key
// still expires on its own.
func (m *GroupMember) Stop() error {
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

	ctx, cancel := context.WithTimeout(context.Background(), stopDeleteTimeout)
	defer cancel()

	if err := m.kv.Delete(ctx, keys.Heartbeat(m.groupID, m.memberID)); err != nil {
		return fmt.Errorf("stopped but failed to delete heartbeat: %w", err)
	}

	return nil
}

// MemberID returns the member id.
func (m *GroupMember) MemberID() string {
	return m.memberID
}

func (m *GroupMember) loop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			err := m.refresh(ctx)
			cancel()

			if err != nil {
				m.logFailure(err)
			}
		}
	}
}

func (m *GroupMember) refresh(ctx context.Context) error {
	defer kvutil.Observe(m.metrics, "put", time.Now())

	value := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	_, err := m.kv.Put(ctx, keys.Heartbeat(m.groupID, m.memberID), value)
	m.metrics.RecordHeartbeat(m.groupID, err == nil)
	if err != nil {
		return fmt.Errorf("failed to refresh heartbeat for %s/%s: %w", m.groupID, m.memberID, err)
	}

	return nil
}

func (m *GroupMember) logFailure(err error) {
	if natsutil.IsConnectivityError(err) {
		m.logger.Warn("heartbeat refresh failed, retrying", "group", m.groupID, "member", m.memberID, "error", err)
		return
	}
	m.logger.Error("heartbeat refresh failed, retrying", "group", m.groupID, "member", m.memberID, "error", err)
}

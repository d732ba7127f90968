package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/internal/assignment"
	"github.com/arloliu/partigroup/internal/hooks"
	"github.com/arloliu/partigroup/internal/keys"
	"github.com/arloliu/partigroup/internal/logging"
	"github.com/arloliu/partigroup/internal/metrics"
	"github.com/arloliu/partigroup/strategy"
	"github.com/arloliu/partigroup/types"
)

// Settings holds the timing and sizing of a coordinator.
type Settings struct {
	PartitionCount         int
	HeartbeatInterval      time.Duration
	MembershipPollInterval time.Duration
	AssignmentPollInterval time.Duration
	LeaderPollInterval     time.Duration
	LeaseRenewInterval     time.Duration
	ResyncInterval         time.Duration
	OperationTimeout       time.Duration
	WatchMembership        bool
}

func (s Settings) validate() error {
	if s.PartitionCount <= 0 {
		return fmt.Errorf("%w: partition count must be positive", types.ErrInvalidConfig)
	}

	for name, d := range map[string]time.Duration{
		"heartbeat interval":       s.HeartbeatInterval,
		"membership poll interval": s.MembershipPollInterval,
		"assignment poll interval": s.AssignmentPollInterval,
		"leader poll interval":     s.LeaderPollInterval,
		"lease renew interval":     s.LeaseRenewInterval,
		"resync interval":          s.ResyncInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", types.ErrInvalidConfig, name)
		}
	}

	return nil
}

// Factory creates coordinators that share buckets and observability.
type Factory struct {
	settings    Settings
	heartbeatKV jetstream.KeyValue
	assignments *assignment.Manager
	locks       types.LeaseLockFactory
	strategy    types.AssignmentStrategy
	logger      types.Logger
	metrics     types.MetricsCollector
	hooks       types.Hooks
}

// Option configures a Factory.
type Option func(*Factory)

// WithStrategy replaces the default round-robin strategy.
func WithStrategy(s types.AssignmentStrategy) Option {
	return func(f *Factory) {
		if s != nil {
			f.strategy = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(f *Factory) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithHooks sets the leadership and error hooks.
func WithHooks(h *types.Hooks) Option {
	return func(f *Factory) {
		f.hooks = hooks.WithDefaults(h)
	}
}

// NewFactory creates a coordinator factory.
//
// Parameters:
//   - settings: Timings and partition count shared by every coordinator
//   - heartbeatKV: Heartbeat bucket (TTL = heartbeat TTL)
//   - assignmentKV: Assignment bucket (TTL = assignment TTL)
//   - locks: Lease lock factory (election.NewNATSLockFactory for NATS KV)
//   - opts: Optional strategy, logger, metrics and hooks
//
// Returns:
//   - *Factory: The factory
//   - error: types.ErrInvalidConfig on bad settings or missing dependencies
func NewFactory(settings Settings, heartbeatKV, assignmentKV jetstream.KeyValue, locks types.LeaseLockFactory, opts ...Option) (*Factory, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if heartbeatKV == nil || assignmentKV == nil || locks == nil {
		return nil, errors.Join(types.ErrInvalidConfig, errors.New("heartbeat bucket, assignment bucket and lock factory are required"))
	}
	if settings.OperationTimeout <= 0 {
		settings.OperationTimeout = settings.LeaseRenewInterval
	}

	f := &Factory{
		settings:    settings,
		heartbeatKV: heartbeatKV,
		locks:       locks,
		strategy:    strategy.NewRoundRobin(),
		logger:      logging.NewNop(),
		metrics:     metrics.NewNop(),
		hooks:       hooks.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.assignments = assignment.NewManager(assignmentKV, f.logger, f.metrics)

	return f, nil
}

// Assignments returns the assignment manager shared by the factory's
// coordinators.
func (f *Factory) Assignments() *assignment.Manager {
	return f.assignments
}

// Create builds a coordinator for one member of a group. The coordinator
// is not started.
//
// Parameters:
//   - groupID: Group id
//   - memberID: Member id, unique within the group
//   - onPartitions: Receives the member's partition set on every change
func (f *Factory) Create(groupID, memberID string, onPartitions assignment.ChangeFunc) (*Coordinator, error) {
	if err := keys.ValidateID("group", groupID); err != nil {
		return nil, err
	}
	if err := keys.ValidateID("member", memberID); err != nil {
		return nil, err
	}

	lock, err := f.locks(groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to create lease lock for %s: %w", groupID, err)
	}

	logger := f.logger
	if sl, ok := logger.(*logging.SlogLogger); ok {
		logger = sl.With("group", groupID, "member", memberID)
	}

	return newCoordinator(f, groupID, memberID, lock, logger, onPartitions), nil
}

package partigroup

import (
	"github.com/google/uuid"
)

// Option configures a Consumer with optional dependencies.
type Option func(*consumerOptions)

// consumerOptions holds optional Consumer configuration.
type consumerOptions struct {
	logger     Logger
	metrics    MetricsCollector
	hooks      *Hooks
	consumerID string
	newSubID   func() string
	leaseLocks LeaseLockFactory
	strategy   AssignmentStrategy
}

func defaultOptions() consumerOptions {
	return consumerOptions{
		newSubID: func() string { return uuid.NewString() },
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation
//
// Returns:
//   - Option: Functional option for NewConsumer
//
// Example:
//
//	consumer, err := partigroup.NewConsumer(&cfg, nc,
//	    partigroup.WithLogger(logging.NewSlogDefault()))
func WithLogger(logger Logger) Option {
	return func(o *consumerOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewConsumer
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *consumerOptions) {
		o.metrics = metrics
	}
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewConsumer
//
// Example:
//
//	hooks := &partigroup.Hooks{
//	    OnPartitionsChanged: func(ctx context.Context, channel, subID string, parts partigroup.PartitionSet) error {
//	        return nil
//	    },
//	}
//	consumer, err := partigroup.NewConsumer(&cfg, nc, partigroup.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *consumerOptions) {
		o.hooks = hooks
	}
}

// WithConsumerID sets the member id this consumer uses in every group it
// joins. It must be unique per process within a group. Defaults to a random
// UUID.
func WithConsumerID(id string) Option {
	return func(o *consumerOptions) {
		o.consumerID = id
	}
}

// WithSubscriptionIDGenerator replaces the generator of subscription ids
// passed to the lifecycle hook. Defaults to random UUIDs.
func WithSubscriptionIDGenerator(gen func() string) Option {
	return func(o *consumerOptions) {
		if gen != nil {
			o.newSubID = gen
		}
	}
}

// WithLeaseLockFactory replaces the NATS KV leader lease lock.
//
// Any lock with lease semantics works: Acquire must grant the lock to at
// most one holder at a time, and an unrenewed lease must expire.
func WithLeaseLockFactory(factory LeaseLockFactory) Option {
	return func(o *consumerOptions) {
		o.leaseLocks = factory
	}
}

// WithStrategy replaces the round-robin assignment strategy. Every member
// of a group must use the same strategy.
func WithStrategy(strategy AssignmentStrategy) Option {
	return func(o *consumerOptions) {
		o.strategy = strategy
	}
}

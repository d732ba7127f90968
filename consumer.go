package partigroup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/partigroup/internal/coordinator"
	"github.com/arloliu/partigroup/internal/election"
	"github.com/arloliu/partigroup/internal/hooks"
	"github.com/arloliu/partigroup/internal/keys"
	"github.com/arloliu/partigroup/internal/kvutil"
	"github.com/arloliu/partigroup/internal/logging"
	"github.com/arloliu/partigroup/internal/metrics"
	"github.com/arloliu/partigroup/internal/natsutil"
)

// PartitionHook is invoked once per destination whenever the partitions
// owned by a subscription change, including the initial assignment and the
// transition to the empty set on close. Calls for one subscription arrive in
// order on that subscription's dispatcher goroutine.
type PartitionHook func(ctx context.Context, channel, subscriptionID string, partitions PartitionSet) error

// Consumer joins partitioned consumer groups on behalf of one process.
//
// Each Subscribe call joins the group named by its subscriber id as one
// member. The group's leader spreads the configured partitions over the
// live members, and every member pulls only the partitions it owns.
type Consumer struct {
	cfg     Config
	conn    *nats.Conn
	js      jetstream.JetStream
	id      string
	logger  Logger
	metrics MetricsCollector
	hooks   Hooks
	opts    consumerOptions

	partitionHook atomic.Pointer[PartitionHook]
	// subs is only written under mu, which also serializes Subscribe and
	// Close; the concurrent map lets Subscription lookups skip the lock.
	subs *xsync.Map[string, *Subscription]

	mu      sync.Mutex
	factory *coordinator.Factory
	closed  bool
}

// NewConsumer creates a consumer. No NATS resources are created until the
// first Subscribe.
//
// Parameters:
//   - cfg: Configuration; defaults are applied in place before validation
//   - conn: NATS connection with JetStream enabled
//   - opts: Optional logger, metrics, hooks, ids, lock factory and strategy
//
// Returns:
//   - *Consumer: Initialized consumer
//   - error: ErrInvalidConfig, ErrInvalidID or ErrNATSConnectionRequired
//
// Example:
//
//	cfg := partigroup.DefaultConfig()
//	cfg.PartitionCount = 16
//	consumer, err := partigroup.NewConsumer(&cfg, nc)
//	sub, err := consumer.Subscribe(ctx, "billing", []string{"orders"}, handler)
//	defer consumer.Close(context.Background())
func NewConsumer(cfg *Config, conn *nats.Conn, opts ...Option) (*Consumer, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if conn == nil {
		return nil, ErrNATSConnectionRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.consumerID == "" {
		options.consumerID = uuid.NewString()
	}
	if err := keys.ValidateID("consumer", options.consumerID); err != nil {
		return nil, err
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}
	if sl, ok := loggerInstance.(*logging.SlogLogger); ok {
		loggerInstance = sl.With("consumer", options.consumerID)
	}

	cfg.ValidateWithWarnings(loggerInstance)

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	c := &Consumer{
		cfg:     *cfg,
		conn:    conn,
		js:      js,
		id:      options.consumerID,
		logger:  loggerInstance,
		metrics: metricsCollector,
		hooks:   hooks.WithDefaults(options.hooks),
		opts:    options,
		subs:    xsync.NewMap[string, *Subscription](),
	}

	hook := PartitionHook(c.hooks.OnPartitionsChanged)
	c.partitionHook.Store(&hook)

	return c, nil
}

// ID returns the member id this consumer uses in its groups.
func (c *Consumer) ID() string {
	return c.id
}

// Subscription returns the running subscription of a group, if any.
func (c *Consumer) Subscription(subscriberID string) (*Subscription, bool) {
	return c.subs.Load(subscriberID)
}

// SetSubscriptionLifecycleHook replaces the partition hook for current and
// future subscriptions. A nil hook disables it.
func (c *Consumer) SetSubscriptionLifecycleHook(hook PartitionHook) {
	if hook == nil {
		hook = func(context.Context, string, string, PartitionSet) error { return nil }
	}
	c.partitionHook.Store(&hook)
}

// Subscribe joins the group subscriberID and delivers messages of the
// partitions this consumer is assigned, across every destination, to
// handler.
//
// The subscription keeps running after ctx ends; ctx only bounds setup.
// Coordination store problems never surface here, not even a failure to
// create the coordination buckets: the subscription is returned, owns no
// partitions, and joins the group once the store recovers.
//
// Parameters:
//   - ctx: Context for stream setup
//   - subscriberID: Group name; all members of one group must use the same destinations
//   - destinations: Channels to consume; each gets its own stream
//   - handler: Message handler; nil error acks, non-nil error naks
//
// Returns:
//   - *Subscription: Running subscription
//   - error: Invalid arguments, ErrConsumerClosed, ErrAlreadySubscribed, or stream setup failure
func (c *Consumer) Subscribe(ctx context.Context, subscriberID string, destinations []string, handler MessageHandler) (*Subscription, error) {
	if err := keys.ValidateID("subscriber", subscriberID); err != nil {
		return nil, err
	}
	if len(destinations) == 0 {
		return nil, ErrNoDestinations
	}
	dests := slices.Clone(destinations)
	slices.Sort(dests)
	dests = slices.Compact(dests)
	for _, d := range dests {
		if err := keys.ValidateID("destination", d); err != nil {
			return nil, err
		}
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConsumerClosed
	}
	if _, exists := c.subs.Load(subscriberID); exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, subscriberID)
	}

	setupCtx, cancel := context.WithTimeout(ctx, c.cfg.StartupTimeout)
	defer cancel()

	for _, d := range dests {
		if _, err := natsutil.EnsureStream(setupCtx, c.js, c.cfg.Delivery.StreamPrefix, d, c.cfg.Delivery.MaxAge); err != nil {
			return nil, err
		}
	}

	sub, err := newSubscription(c, subscriberID, dests, handler)
	if err != nil {
		return nil, err
	}

	factory, err := c.ensureFactory(setupCtx)
	if err != nil {
		c.logger.Warn("coordination store unavailable, joining in background",
			"subscriber", subscriberID, "error", err)
		sub.joinInBackground()
	} else if err := sub.join(ctx, factory); err != nil {
		sub.abort()
		return nil, err
	}
	c.subs.Store(subscriberID, sub)

	c.logger.Info("subscribed", "subscriber", subscriberID, "subscription", sub.id, "destinations", dests)

	return sub, nil
}

// Close closes every subscription. Close is idempotent.
//
// When ctx has no deadline, ShutdownTimeout bounds the close.
func (c *Consumer) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*Subscription, 0, c.subs.Size())
	c.subs.Range(func(_ string, s *Subscription) bool {
		subs = append(subs, s)
		return true
	})
	c.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	for _, s := range subs {
		errs = append(errs, s.Close(ctx))
	}
	c.logger.Info("consumer closed", "subscriptions", len(subs))

	return errors.Join(errs...)
}

// ensureFactory creates the coordination buckets and the coordinator
// factory on first use. Callers hold c.mu.
func (c *Consumer) ensureFactory(ctx context.Context) (*coordinator.Factory, error) {
	if c.factory != nil {
		return c.factory, nil
	}

	bucket := func(name string, ttl time.Duration) (jetstream.KeyValue, error) {
		return kvutil.EnsureBucket(ctx, c.js, jetstream.KeyValueConfig{
			Bucket:  name,
			History: 1,
			TTL:     ttl,
		}, 3)
	}

	heartbeatKV, err := bucket(c.cfg.KVBuckets.HeartbeatBucket, c.cfg.HeartbeatTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create heartbeat KV: %w", err)
	}
	assignmentKV, err := bucket(c.cfg.KVBuckets.AssignmentBucket, c.cfg.KVBuckets.AssignmentTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create assignment KV: %w", err)
	}

	locks := c.opts.leaseLocks
	if locks == nil {
		electionKV, err := bucket(c.cfg.KVBuckets.ElectionBucket, c.cfg.LeaseDuration)
		if err != nil {
			return nil, fmt.Errorf("failed to create election KV: %w", err)
		}
		locks = election.NewNATSLockFactory(electionKV)
	}

	factory, err := coordinator.NewFactory(c.cfg.coordinatorSettings(), heartbeatKV, assignmentKV, locks,
		coordinator.WithStrategy(c.opts.strategy),
		coordinator.WithLogger(c.logger),
		coordinator.WithMetrics(c.metrics),
		coordinator.WithHooks(&c.hooks),
	)
	if err != nil {
		return nil, err
	}
	c.factory = factory

	return factory, nil
}

// lockedFactory is ensureFactory for callers outside Subscribe. It gives up
// once the consumer is closed.
func (c *Consumer) lockedFactory(ctx context.Context) (*coordinator.Factory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConsumerClosed
	}

	return c.ensureFactory(ctx)
}

func (c *Consumer) removeSubscription(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.subs.Load(s.subscriberID); ok && cur == s {
		c.subs.Delete(s.subscriberID)
	}
}

func (c *Consumer) notifyPartitions(ctx context.Context, channel, subscriptionID string, partitions PartitionSet) {
	hook := *c.partitionHook.Load()
	if err := hook(ctx, channel, subscriptionID, partitions); err != nil {
		c.logger.Warn("partition hook failed", "channel", channel, "subscription", subscriptionID, "error", err)
	}
}

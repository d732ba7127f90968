package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/internal/natsutil"
	"github.com/arloliu/partigroup/types"
)

// OwnershipFunc reports whether the subscription currently owns a partition.
type OwnershipFunc func(partition int) bool

// DurableHelper manages the pull loops of one destination.
type DurableHelper struct {
	js      jetstream.JetStream
	config  DurableConfig
	logger  types.Logger
	metrics types.MetricsCollector
	handler types.MessageHandler
	owns    OwnershipFunc

	mu     sync.Mutex
	loops  map[int]*pullLoop
	closed bool
}

type pullLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDurableHelper creates a helper for one destination. No pull loop runs
// until UpdatePartitions is called.
//
// Parameters:
//   - js: JetStream context
//   - cfg: Helper configuration with StreamName, Destination and ConsumerPrefix set
//   - handler: Message handler; nil error acks, non-nil error naks
//   - owns: Ownership check run before every message is handled
//
// Returns:
//   - *DurableHelper: Initialized helper with defaults applied
//   - error: types.ErrInvalidConfig or types.ErrHandlerRequired
//
// Example:
//
//	helper, err := subscription.NewDurableHelper(js, subscription.DurableConfig{
//	    StreamName:     natsutil.StreamName("partigroup", "orders"),
//	    Destination:    "orders",
//	    ConsumerPrefix: "billing",
//	}, handler, sub.Owns)
func NewDurableHelper(js jetstream.JetStream, cfg DurableConfig, handler types.MessageHandler, owns OwnershipFunc) (*DurableHelper, error) {
	if js == nil {
		return nil, fmt.Errorf("%w: JetStream context is required", types.ErrInvalidConfig)
	}
	if handler == nil {
		return nil, types.ErrHandlerRequired
	}
	if owns == nil {
		return nil, fmt.Errorf("%w: ownership check is required", types.ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &DurableHelper{
		js:      js,
		config:  cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		handler: handler,
		owns:    owns,
		loops:   make(map[int]*pullLoop),
	}, nil
}

// ConsumerName returns the durable consumer name for a partition.
func ConsumerName(prefix, destination string, partition int) string {
	return prefix + "-" + destination + "-" + strconv.Itoa(partition)
}

// UpdatePartitions reconciles the running pull loops with the owned set:
// loops for removed partitions are cancelled and loops for added partitions
// are started. It does not wait for cancelled loops to exit; their
// remaining messages are NAK'd.
//
// Durable consumers are never deleted here. The next owner of a partition
// resumes from the same durable, and the server drops unused ones after
// InactiveThreshold.
func (dh *DurableHelper) UpdatePartitions(partitions types.PartitionSet) {
	dh.mu.Lock()
	defer dh.mu.Unlock()

	if dh.closed {
		return
	}

	for p, loop := range dh.loops {
		if !partitions.Contains(p) {
			dh.logger.Debug("stopping pull loop", "destination", dh.config.Destination, "partition", p)
			loop.cancel()
			delete(dh.loops, p)
		}
	}

	for _, p := range partitions.Slice() {
		if _, running := dh.loops[p]; running {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		loop := &pullLoop{cancel: cancel, done: make(chan struct{})}
		dh.loops[p] = loop

		dh.logger.Debug("starting pull loop", "destination", dh.config.Destination, "partition", p)
		go func() {
			defer close(loop.done)
			dh.run(ctx, p)
		}()
	}
}

// ActivePartitions returns the partitions with a running pull loop, sorted.
func (dh *DurableHelper) ActivePartitions() []int {
	dh.mu.Lock()
	defer dh.mu.Unlock()

	parts := make([]int, 0, len(dh.loops))
	for p := range dh.loops {
		parts = append(parts, p)
	}
	slices.Sort(parts)

	return parts
}

// Close stops every pull loop and waits for them to exit or for ctx to end.
// Close is idempotent.
func (dh *DurableHelper) Close(ctx context.Context) error {
	dh.mu.Lock()
	if dh.closed {
		dh.mu.Unlock()
		return nil
	}
	dh.closed = true
	loops := dh.loops
	dh.loops = make(map[int]*pullLoop)
	dh.mu.Unlock()

	for _, loop := range loops {
		loop.cancel()
	}
	for _, loop := range loops {
		select {
		case <-loop.done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for pull loops of %s: %w", dh.config.Destination, ctx.Err())
		}
	}

	return nil
}

// run pulls messages for one partition until ctx is cancelled.
func (dh *DurableHelper) run(ctx context.Context, partition int) {
	rng := newRetryRNG(dh.config.RetrySeed + int64(partition))
	var delay time.Duration
	backoff := func() bool {
		delay = jitterBackoff(delay, dh.config.RetryBackoff, 2.0, dh.config.MaxRetryBackoff, rng)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
			return true
		}
	}

	var consumer jetstream.Consumer
	for ctx.Err() == nil {
		if consumer == nil {
			c, err := dh.getOrCreateConsumer(ctx, partition)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				dh.logger.Warn("failed to get consumer, retrying",
					"destination", dh.config.Destination, "partition", partition, "error", err)
				if !backoff() {
					return
				}

				continue
			}
			consumer = c
		}

		batch, err := consumer.Fetch(dh.config.BatchSize, jetstream.FetchMaxWait(dh.config.FetchTimeout))
		if err != nil {
			dh.logger.Warn("fetch failed, retrying",
				"destination", dh.config.Destination, "partition", partition, "error", err)
			if errors.Is(err, jetstream.ErrConsumerNotFound) {
				consumer = nil
			}
			if !backoff() {
				return
			}

			continue
		}

		for msg := range batch.Messages() {
			dh.dispatch(ctx, partition, msg)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && ctx.Err() == nil {
			// The consumer may have been removed; look it up again.
			dh.logger.Debug("fetch ended with error",
				"destination", dh.config.Destination, "partition", partition, "error", err)
			consumer = nil
			select {
			case <-ctx.Done():
				return
			case <-time.After(dh.config.RetryBackoff):
			}

			continue
		}
		delay = 0
	}
}

// dispatch hands one message to the handler if the partition is still owned.
func (dh *DurableHelper) dispatch(ctx context.Context, partition int, msg jetstream.Msg) {
	if ctx.Err() != nil || !dh.owns(partition) {
		_ = msg.Nak()
		dh.metrics.RecordMessage(dh.config.Destination, ResultUnowned)

		return
	}

	m := toMessage(msg, dh.config.Destination, partition)
	if err := dh.handler(ctx, m); err != nil {
		dh.logger.Warn("message handler returned error, sending NAK",
			"subject", msg.Subject(), "id", m.ID, "error", err)
		_ = msg.Nak()
		dh.metrics.RecordMessage(dh.config.Destination, ResultNacked)

		return
	}

	_ = msg.Ack()
	dh.metrics.RecordMessage(dh.config.Destination, ResultAcked)
}

// getOrCreateConsumer looks up the partition's durable, creating it when
// missing, with bounded retries.
func (dh *DurableHelper) getOrCreateConsumer(ctx context.Context, partition int) (jetstream.Consumer, error) {
	name := ConsumerName(dh.config.ConsumerPrefix, dh.config.Destination, partition)
	subject := natsutil.Subject(dh.config.Destination, partition)

	var consumer jetstream.Consumer
	err := natsutil.Retry(ctx, dh.config.MaxRetries, dh.config.RetryBackoff, func(ctx context.Context) error {
		stream, err := dh.js.Stream(ctx, dh.config.StreamName)
		if err != nil {
			return fmt.Errorf("failed to get stream %s: %w", dh.config.StreamName, err)
		}

		c, err := dh.tryGetOrCreateConsumer(ctx, stream, name, subject)
		if err != nil {
			return err
		}
		consumer = c

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get/create consumer %s: %w", name, err)
	}

	return consumer, nil
}

// tryGetOrCreateConsumer opens an existing consumer, or creates it. Losing a
// creation race to another member opens the winner's consumer.
func (dh *DurableHelper) tryGetOrCreateConsumer(ctx context.Context, stream jetstream.Stream, name, subject string) (jetstream.Consumer, error) {
	consumer, err := stream.Consumer(ctx, name)
	if err == nil {
		return consumer, nil
	}
	if !errors.Is(err, jetstream.ErrConsumerNotFound) {
		return nil, fmt.Errorf("failed to access consumer: %w", err)
	}

	consumer, err = stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              name,
		Durable:           name,
		FilterSubject:     subject,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           dh.config.AckWait,
		MaxDeliver:        dh.config.MaxDeliver,
		InactiveThreshold: dh.config.InactiveThreshold,
	})
	if err == nil {
		dh.logger.Info("consumer created", "consumerName", name, "subject", subject)
		return consumer, nil
	}
	if !errors.Is(err, jetstream.ErrConsumerNameAlreadyInUse) && !errors.Is(err, jetstream.ErrConsumerExists) {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	consumer, err = stream.Consumer(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer after race: %w", err)
	}

	return consumer, nil
}

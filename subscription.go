package partigroup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/partigroup/internal/coordinator"
	"github.com/arloliu/partigroup/internal/hooks"
	"github.com/arloliu/partigroup/internal/natsutil"
	"github.com/arloliu/partigroup/subscription"
	"github.com/arloliu/partigroup/types"
)

// Subscription is one consumer's membership in a group together with the
// pull loops for the partitions it owns.
type Subscription struct {
	id           string
	subscriberID string
	destinations []string
	consumer     *Consumer
	helpers      map[string]*subscription.DurableHelper

	owned  atomic.Pointer[types.PartitionSet]
	coord  atomic.Pointer[coordinator.Coordinator]
	events *hooks.Serial

	// joinCtx is cancelled by Close to abandon a pending background join.
	joinCtx    context.Context
	joinCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newSubscription(c *Consumer, subscriberID string, destinations []string, handler MessageHandler) (*Subscription, error) {
	s := &Subscription{
		id:           c.opts.newSubID(),
		subscriberID: subscriberID,
		destinations: destinations,
		consumer:     c,
		helpers:      make(map[string]*subscription.DurableHelper, len(destinations)),
	}
	empty := types.NewPartitionSet()
	s.owned.Store(&empty)

	for _, d := range destinations {
		helper, err := subscription.NewDurableHelper(c.js, subscription.DurableConfig{
			StreamName:        natsutil.StreamName(c.cfg.Delivery.StreamPrefix, d),
			Destination:       d,
			ConsumerPrefix:    subscriberID,
			AckWait:           c.cfg.Delivery.AckWait,
			MaxDeliver:        c.cfg.Delivery.MaxDeliver,
			InactiveThreshold: c.cfg.Delivery.InactiveThreshold,
			BatchSize:         c.cfg.Delivery.BatchSize,
			FetchTimeout:      c.cfg.Delivery.FetchTimeout,
			Logger:            c.logger,
			Metrics:           c.metrics,
		}, handler, s.Owns)
		if err != nil {
			return nil, err
		}
		s.helpers[d] = helper
	}

	s.joinCtx, s.joinCancel = context.WithCancel(context.Background())
	s.events = hooks.NewSerial()

	return s, nil
}

// join creates and starts the coordinator. A subscription closed in the
// meantime stays closed.
func (s *Subscription) join(ctx context.Context, factory *coordinator.Factory) error {
	coord, err := factory.Create(s.subscriberID, s.consumer.id, s.onPartitions)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator for %s: %w", s.subscriberID, err)
	}
	s.coord.Store(coord)

	return nil
}

// joinInBackground keeps trying to reach the coordination store and joins
// the group once it can. Until then the subscription owns no partitions.
func (s *Subscription) joinInBackground() {
	c := s.consumer
	go func() {
		delay := c.cfg.HeartbeatInterval
		for {
			select {
			case <-s.joinCtx.Done():
				return
			case <-time.After(delay):
			}

			setupCtx, cancel := context.WithTimeout(s.joinCtx, c.cfg.StartupTimeout)
			factory, err := c.lockedFactory(setupCtx)
			cancel()
			if err != nil {
				if s.joinCtx.Err() != nil || errors.Is(err, ErrConsumerClosed) {
					return
				}
				c.logger.Warn("coordination store still unavailable, retrying",
					"subscriber", s.subscriberID, "retryIn", delay, "error", err)
				delay = min(delay*2, c.cfg.HeartbeatTTL)

				continue
			}

			if err := s.join(s.joinCtx, factory); err != nil {
				c.logger.Error("failed to join group", "subscriber", s.subscriberID, "error", err)
				return
			}
			c.logger.Info("joined group after coordination store recovered", "subscriber", s.subscriberID)

			return
		}
	}()
}

// ID returns the subscription id passed to the partition hook.
func (s *Subscription) ID() string { return s.id }

// SubscriberID returns the group this subscription belongs to.
func (s *Subscription) SubscriberID() string { return s.subscriberID }

// Destinations returns the subscribed destinations, sorted.
func (s *Subscription) Destinations() []string {
	out := make([]string, len(s.destinations))
	copy(out, s.destinations)

	return out
}

// Partitions returns the partitions currently owned.
func (s *Subscription) Partitions() PartitionSet {
	return *s.owned.Load()
}

// Owns reports whether partition p is currently owned.
func (s *Subscription) Owns(p int) bool {
	return s.owned.Load().Contains(p)
}

// IsLeader reports whether this member currently leads its group.
func (s *Subscription) IsLeader() bool {
	coord := s.coord.Load()
	return coord != nil && coord.IsLeader()
}

// Members returns the live members of the group as last observed.
func (s *Subscription) Members() []string {
	coord := s.coord.Load()
	if coord == nil {
		return nil
	}

	return coord.Members()
}

// onPartitions applies a new assignment: it swaps the ownership snapshot,
// reconciles the pull loops and queues the hook calls. Hooks run on the
// subscription's dispatcher, never under s.mu, so a hook may close the
// subscription.
func (s *Subscription) onPartitions(_ context.Context, partitions types.PartitionSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	prev := *s.owned.Swap(&partitions)
	added, removed := partitions.Diff(prev)

	c := s.consumer
	c.metrics.RecordOwnedPartitions(s.subscriberID, partitions.Len())
	c.metrics.RecordPartitionChange(s.subscriberID, len(added), len(removed))
	c.logger.Info("partitions changed",
		"subscriber", s.subscriberID,
		"partitions", partitions.String(),
		"added", added,
		"removed", removed,
	)

	for _, d := range s.destinations {
		s.helpers[d].UpdatePartitions(partitions)
	}
	s.notify(partitions)
}

// notify queues one hook call per destination. Callers hold s.mu, which
// keeps the queue in assignment order.
func (s *Subscription) notify(partitions types.PartitionSet) {
	s.events.Submit(func(ctx context.Context) {
		for _, d := range s.destinations {
			s.consumer.notifyPartitions(ctx, d, s.id, partitions)
		}
	})
}

// Close leaves the group: it stops the coordinator (releasing leadership
// and removing the heartbeat so the remaining members rebalance at once),
// stops the pull loops and reports the empty partition set. Close is
// idempotent.
//
// Close waits for queued hook calls, the empty-set one included, to finish.
// A hook that closes its own subscription should pass the context it was
// given; Close then returns without waiting for the hook it runs in. When
// ctx has no deadline, ShutdownTimeout bounds the close.
func (s *Subscription) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.consumer.cfg.ShutdownTimeout)
		defer cancel()
	}

	s.joinCancel()

	var errs []error
	if coord := s.coord.Load(); coord != nil {
		errs = append(errs, coord.Stop(ctx))
	}

	empty := types.NewPartitionSet()
	s.owned.Store(&empty)
	errs = append(errs, s.closeHelpers(ctx))

	c := s.consumer
	c.metrics.RecordOwnedPartitions(s.subscriberID, 0)

	s.mu.Lock()
	s.notify(empty)
	s.mu.Unlock()
	s.events.Close()
	if err := s.events.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for partition hooks of %s: %w", s.subscriberID, err))
	}

	c.removeSubscription(s)
	c.logger.Info("subscription closed", "subscriber", s.subscriberID, "subscription", s.id)

	return errors.Join(errs...)
}

// abort releases what newSubscription started when Subscribe fails.
func (s *Subscription) abort() {
	s.joinCancel()
	s.events.Close()
	_ = s.closeHelpers(context.Background())
}

func (s *Subscription) closeHelpers(ctx context.Context) error {
	var errs []error
	for _, d := range s.destinations {
		errs = append(errs, s.helpers[d].Close(ctx))
	}

	return errors.Join(errs...)
}

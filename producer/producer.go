// Package producer publishes messages onto the partitions of a destination.
//
// A destination with P partitions is carried by one JetStream stream whose
// subjects are "{destination}.{partition}". Keyed messages are routed by
// hashing the key, so all messages of one key land on one partition and are
// handled in order by whichever group member owns it.
package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/internal/hash"
	"github.com/arloliu/partigroup/internal/keys"
	"github.com/arloliu/partigroup/internal/logging"
	"github.com/arloliu/partigroup/internal/natsutil"
	"github.com/arloliu/partigroup/types"
)

// DefaultStreamPrefix matches the consumer's default stream prefix.
const DefaultStreamPrefix = "partigroup"

// Producer sends messages to partitioned destinations.
type Producer struct {
	js         jetstream.JetStream
	partitions int
	prefix     string
	maxAge     time.Duration
	seed       uint64
	newID      func() string
	logger     types.Logger

	mu      sync.Mutex
	streams map[string]struct{}
}

// Option configures a Producer.
type Option func(*Producer)

// WithStreamPrefix sets the stream name prefix. It must match the
// consumers' Delivery.StreamPrefix.
func WithStreamPrefix(prefix string) Option {
	return func(p *Producer) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithMaxAge sets the retention of streams this producer creates.
func WithMaxAge(d time.Duration) Option {
	return func(p *Producer) {
		p.maxAge = d
	}
}

// WithHashSeed seeds the key hash. Producers of one destination must agree
// on the seed for a key to stay on one partition.
func WithHashSeed(seed uint64) Option {
	return func(p *Producer) {
		p.seed = seed
	}
}

// WithIDGenerator replaces the random message id generator.
func WithIDGenerator(gen func() string) Option {
	return func(p *Producer) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger types.Logger) Option {
	return func(p *Producer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a producer for destinations with partitionCount partitions.
//
// Parameters:
//   - js: JetStream context
//   - partitionCount: Number of partitions; must equal the consumers' PartitionCount
//   - opts: Optional stream prefix, retention, hash seed, id generator and logger
//
// Returns:
//   - *Producer: The producer
//   - error: types.ErrInvalidConfig on a nil context or non-positive partition count
//
// Example:
//
//	js, _ := jetstream.New(nc)
//	p, err := producer.New(js, 16)
//	err = p.Send(ctx, "orders", "customer-42", payload)
func New(js jetstream.JetStream, partitionCount int, opts ...Option) (*Producer, error) {
	if js == nil {
		return nil, fmt.Errorf("%w: JetStream context is required", types.ErrInvalidConfig)
	}
	if partitionCount <= 0 {
		return nil, fmt.Errorf("%w: partition count must be positive, got %d", types.ErrInvalidConfig, partitionCount)
	}

	p := &Producer{
		js:         js,
		partitions: partitionCount,
		prefix:     DefaultStreamPrefix,
		newID:      uuid.NewString,
		logger:     logging.NewNop(),
		streams:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// PartitionCount returns the number of partitions per destination.
func (p *Producer) PartitionCount() int {
	return p.partitions
}

// Partition returns the partition key routes to.
func (p *Producer) Partition(key string) int {
	return hash.PartitionSeed(key, p.partitions, p.seed)
}

// Send publishes payload to the partition key routes to.
func (p *Producer) Send(ctx context.Context, destination, key string, payload []byte) error {
	return p.publish(ctx, &types.Message{
		Destination: destination,
		Partition:   p.Partition(key),
		Key:         key,
		Payload:     payload,
	})
}

// SendToPartition publishes payload to an explicit partition.
//
// Returns:
//   - error: types.ErrPartitionOutOfRange for partitions outside [0, PartitionCount)
func (p *Producer) SendToPartition(ctx context.Context, destination string, partition int, payload []byte) error {
	return p.publish(ctx, &types.Message{
		Destination: destination,
		Partition:   partition,
		Payload:     payload,
	})
}

// SendMessage publishes a fully specified message. An empty ID is
// generated; a non-empty Key overrides Partition with the key's partition.
func (p *Producer) SendMessage(ctx context.Context, msg *types.Message) error {
	m := *msg
	if m.Key != "" {
		m.Partition = p.Partition(m.Key)
	}

	return p.publish(ctx, &m)
}

func (p *Producer) publish(ctx context.Context, m *types.Message) error {
	if err := keys.ValidateID("destination", m.Destination); err != nil {
		return err
	}
	if m.Partition < 0 || m.Partition >= p.partitions {
		return fmt.Errorf("%w: %d not in [0, %d)", types.ErrPartitionOutOfRange, m.Partition, p.partitions)
	}
	if err := p.ensureStream(ctx, m.Destination); err != nil {
		return err
	}

	id := m.ID
	if id == "" {
		id = p.newID()
	}

	msg := nats.NewMsg(natsutil.Subject(m.Destination, m.Partition))
	msg.Data = m.Payload
	for k, v := range m.Headers {
		msg.Header.Set(k, v)
	}
	msg.Header.Set(types.HeaderMsgID, id)
	if m.Key != "" {
		msg.Header.Set(types.HeaderPartitionKey, m.Key)
	}

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Subject, err)
	}

	return nil
}

func (p *Producer) ensureStream(ctx context.Context, destination string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.streams[destination]; ok {
		return nil
	}
	if _, err := natsutil.EnsureStream(ctx, p.js, p.prefix, destination, p.maxAge); err != nil {
		return err
	}
	p.streams[destination] = struct{}{}
	p.logger.Debug("stream ready", "stream", natsutil.StreamName(p.prefix, destination))

	return nil
}

package subscription

import (
	"fmt"
	"time"

	"github.com/arloliu/partigroup/internal/logging"
	"github.com/arloliu/partigroup/internal/metrics"
	"github.com/arloliu/partigroup/types"
)

// DurableConfig configures a DurableHelper.
//
// Required fields:
//   - StreamName
//   - Destination
//   - ConsumerPrefix
//
// Zero values of the remaining fields are replaced by defaults.
type DurableConfig struct {
	// StreamName is the JetStream stream carrying the destination.
	StreamName string

	// Destination is the logical channel; partition p is read from subject "{Destination}.{p}".
	Destination string

	// ConsumerPrefix prefixes durable names: "{ConsumerPrefix}-{Destination}-{partition}".
	// Members of one group must share the prefix so they share the durables.
	ConsumerPrefix string

	// AckWait is the duration to wait for an acknowledgment before redelivery.
	AckWait time.Duration

	// MaxDeliver limits delivery attempts per message. Zero means unlimited.
	MaxDeliver int

	// InactiveThreshold is how long an unused durable survives on the server.
	InactiveThreshold time.Duration

	// BatchSize is the number of messages requested per pull.
	BatchSize int

	// FetchTimeout bounds how long one pull waits for messages. It also bounds
	// how long stopping a pull loop can take.
	FetchTimeout time.Duration

	// MaxRetries bounds attempts of a single consumer lookup before the pull
	// loop backs off and starts over.
	MaxRetries int

	// RetryBackoff is the base delay between retries.
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the delay between retries.
	MaxRetryBackoff time.Duration

	// RetrySeed makes retry jitter deterministic when non-zero.
	RetrySeed int64

	Logger  types.Logger
	Metrics types.MetricsCollector
}

func (cfg *DurableConfig) validate() error {
	if cfg.StreamName == "" {
		return fmt.Errorf("%w: stream name is required", types.ErrInvalidConfig)
	}
	if cfg.Destination == "" {
		return fmt.Errorf("%w: destination is required", types.ErrInvalidConfig)
	}
	if cfg.ConsumerPrefix == "" {
		return fmt.Errorf("%w: consumer prefix is required", types.ErrInvalidConfig)
	}

	return nil
}

// applyDefaults fills unset optional fields with project defaults.
func (cfg *DurableConfig) applyDefaults() {
	if cfg.AckWait == 0 {
		cfg.AckWait = DefaultAckWait
	}
	if cfg.InactiveThreshold == 0 {
		cfg.InactiveThreshold = DefaultInactiveThreshold
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = DefaultMaxRetryBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}
}

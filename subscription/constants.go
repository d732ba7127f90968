package subscription

import "time"

// Default configuration values for DurableHelper.
const (
	// DefaultBatchSize is the default number of messages to fetch per pull request.
	DefaultBatchSize = 10

	// DefaultFetchTimeout is the default maximum duration one pull request waits for messages.
	DefaultFetchTimeout = time.Second

	// DefaultMaxRetries is the default number of attempts for consumer lookups.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the base delay between retries.
	DefaultRetryBackoff = 100 * time.Millisecond

	// DefaultMaxRetryBackoff caps the delay between retries.
	DefaultMaxRetryBackoff = 5 * time.Second

	// DefaultAckWait is the default duration to wait for acknowledgment.
	DefaultAckWait = 30 * time.Second

	// DefaultInactiveThreshold is the default inactive consumer cleanup threshold.
	DefaultInactiveThreshold = 24 * time.Hour
)

// Message outcomes reported to metrics.
const (
	ResultAcked   = "acked"
	ResultNacked  = "nacked"
	ResultUnowned = "unowned"
)

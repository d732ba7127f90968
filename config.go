package partigroup

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/partigroup/internal/coordinator"
)

// KVBucketConfig configures NATS JetStream KV bucket names and TTLs.
//
// KV buckets carry one TTL for all of their keys, so each TTL below is the
// bucket's MaxAge. The first process to create a bucket fixes its TTL;
// later processes open the existing bucket as is.
type KVBucketConfig struct {
	// HeartbeatBucket is the bucket name for member heartbeats (TTL = HeartbeatTTL).
	HeartbeatBucket string `yaml:"heartbeatBucket"`

	// AssignmentBucket is the bucket name for partition assignments.
	AssignmentBucket string `yaml:"assignmentBucket"`

	// ElectionBucket is the bucket name for leader leases (TTL = LeaseDuration).
	ElectionBucket string `yaml:"electionBucket"`

	// AssignmentTTL is how long an assignment record survives without being
	// rewritten. The leader rewrites every live record each ResyncInterval,
	// so only records of departed members expire.
	AssignmentTTL time.Duration `yaml:"assignmentTtl"`
}

// DeliveryConfig configures the JetStream streams and pull consumers that
// carry messages.
type DeliveryConfig struct {
	// StreamPrefix prefixes stream names: "{StreamPrefix}_{destination}".
	StreamPrefix string `yaml:"streamPrefix"`

	// MaxAge is the message retention of streams created by this process (0 = unlimited).
	MaxAge time.Duration `yaml:"maxAge"`

	// AckWait is how long a delivered message may stay unacknowledged before redelivery.
	AckWait time.Duration `yaml:"ackWait"`

	// MaxDeliver limits delivery attempts per message (0 = unlimited).
	MaxDeliver int `yaml:"maxDeliver"`

	// BatchSize is the number of messages requested per pull.
	BatchSize int `yaml:"batchSize"`

	// FetchTimeout bounds one pull request, and so how long releasing a
	// partition can take.
	FetchTimeout time.Duration `yaml:"fetchTimeout"`

	// InactiveThreshold is how long an unused partition consumer survives on the server.
	InactiveThreshold time.Duration `yaml:"inactiveThreshold"`
}

// Config is the configuration for a Consumer.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// PartitionCount is the number of partitions of every destination. Required.
	// All members of a group must agree on it.
	PartitionCount int `yaml:"partitionCount"`

	// HeartbeatInterval is how often a member refreshes its heartbeat key.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`

	// HeartbeatTTL is how long a heartbeat key lives without a refresh. A
	// member whose key expires is no longer live.
	// Must be >= 2x HeartbeatInterval. Recommended: 3x.
	HeartbeatTTL time.Duration `yaml:"heartbeatTtl"`

	// MembershipPollInterval is how often the live member set is scanned.
	MembershipPollInterval time.Duration `yaml:"membershipPollInterval"`

	// AssignmentPollInterval is how often a member re-reads its own assignment.
	AssignmentPollInterval time.Duration `yaml:"assignmentPollInterval"`

	// LeaderPollInterval is how often a follower tries to acquire leadership.
	LeaderPollInterval time.Duration `yaml:"leaderPollInterval"`

	// LeaseDuration is the leadership lease length.
	LeaseDuration time.Duration `yaml:"leaseDuration"`

	// LeaseRenewInterval is how often the leader renews its lease.
	// Default: LeaseDuration/3. Must be < LeaseDuration/2.
	LeaseRenewInterval time.Duration `yaml:"leaseRenewInterval"`

	// ResyncInterval is how often the leader rewrites every assignment even
	// without membership changes. Default: AssignmentTTL/3.
	ResyncInterval time.Duration `yaml:"resyncInterval"`

	// WatchMembership adds a KV watch on heartbeat keys so joins and leaves
	// are seen before the next membership poll.
	WatchMembership bool `yaml:"watchMembership"`

	// OperationTimeout is the timeout of a single KV operation.
	// Must be < LeaseDuration.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// StartupTimeout bounds stream and bucket setup during Subscribe.
	StartupTimeout time.Duration `yaml:"startupTimeout"`

	// ShutdownTimeout bounds Close when the caller's context has no deadline.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// KVBuckets controls NATS JetStream KV bucket configuration.
	KVBuckets KVBucketConfig `yaml:"kvBuckets"`

	// Delivery controls message streams and pull consumers.
	Delivery DeliveryConfig `yaml:"delivery"`
}

// DefaultConfig returns a Config with production defaults. PartitionCount
// has no default and must be set.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:      time.Second,
		HeartbeatTTL:           3 * time.Second,
		MembershipPollInterval: 50 * time.Millisecond,
		AssignmentPollInterval: 50 * time.Millisecond,
		LeaderPollInterval:     50 * time.Millisecond,
		LeaseDuration:          10 * time.Second,
		LeaseRenewInterval:     10 * time.Second / 3,
		ResyncInterval:         20 * time.Minute,
		OperationTimeout:       2 * time.Second,
		StartupTimeout:         30 * time.Second,
		ShutdownTimeout:        10 * time.Second,
		KVBuckets: KVBucketConfig{
			HeartbeatBucket:  "partigroup-heartbeat",
			AssignmentBucket: "partigroup-assignment",
			ElectionBucket:   "partigroup-election",
			AssignmentTTL:    time.Hour,
		},
		Delivery: DeliveryConfig{
			StreamPrefix:      "partigroup",
			AckWait:           30 * time.Second,
			BatchSize:         10,
			FetchTimeout:      time.Second,
			InactiveThreshold: 24 * time.Hour,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
// Derived defaults (LeaseRenewInterval, ResyncInterval) follow the values
// already set.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	setDuration := func(d *time.Duration, def time.Duration) {
		if *d == 0 {
			*d = def
		}
	}
	setString := func(s *string, def string) {
		if *s == "" {
			*s = def
		}
	}

	setDuration(&cfg.HeartbeatInterval, defaults.HeartbeatInterval)
	setDuration(&cfg.HeartbeatTTL, 3*cfg.HeartbeatInterval)
	setDuration(&cfg.MembershipPollInterval, defaults.MembershipPollInterval)
	setDuration(&cfg.AssignmentPollInterval, defaults.AssignmentPollInterval)
	setDuration(&cfg.LeaderPollInterval, defaults.LeaderPollInterval)
	setDuration(&cfg.LeaseDuration, defaults.LeaseDuration)
	setDuration(&cfg.LeaseRenewInterval, cfg.LeaseDuration/3)
	setDuration(&cfg.OperationTimeout, min(defaults.OperationTimeout, cfg.LeaseDuration/2))
	setDuration(&cfg.StartupTimeout, defaults.StartupTimeout)
	setDuration(&cfg.ShutdownTimeout, defaults.ShutdownTimeout)

	setString(&cfg.KVBuckets.HeartbeatBucket, defaults.KVBuckets.HeartbeatBucket)
	setString(&cfg.KVBuckets.AssignmentBucket, defaults.KVBuckets.AssignmentBucket)
	setString(&cfg.KVBuckets.ElectionBucket, defaults.KVBuckets.ElectionBucket)
	setDuration(&cfg.KVBuckets.AssignmentTTL, defaults.KVBuckets.AssignmentTTL)
	setDuration(&cfg.ResyncInterval, cfg.KVBuckets.AssignmentTTL/3)

	setString(&cfg.Delivery.StreamPrefix, defaults.Delivery.StreamPrefix)
	setDuration(&cfg.Delivery.AckWait, defaults.Delivery.AckWait)
	setDuration(&cfg.Delivery.FetchTimeout, defaults.Delivery.FetchTimeout)
	setDuration(&cfg.Delivery.InactiveThreshold, defaults.Delivery.InactiveThreshold)
	if cfg.Delivery.BatchSize == 0 {
		cfg.Delivery.BatchSize = defaults.Delivery.BatchSize
	}
	// MaxDeliver and MaxAge of 0 mean unlimited, so they get no default.
}

// Validate checks configuration constraints.
//
// Hard Validation Rules:
//   - PartitionCount > 0
//   - every interval and timeout > 0
//   - HeartbeatTTL >= 2 * HeartbeatInterval (allow 1 missed heartbeat)
//   - LeaseRenewInterval < LeaseDuration / 2 (a lease survives one failed renewal)
//   - OperationTimeout < LeaseDuration
//   - AssignmentTTL > ResyncInterval (live records never expire)
//
// Returns:
//   - error: ErrInvalidConfig wrapped with an explanation, nil if valid
func (cfg *Config) Validate() error {
	if cfg.PartitionCount <= 0 {
		return fmt.Errorf("%w: PartitionCount must be > 0, got %d", ErrInvalidConfig, cfg.PartitionCount)
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"HeartbeatInterval", cfg.HeartbeatInterval},
		{"HeartbeatTTL", cfg.HeartbeatTTL},
		{"MembershipPollInterval", cfg.MembershipPollInterval},
		{"AssignmentPollInterval", cfg.AssignmentPollInterval},
		{"LeaderPollInterval", cfg.LeaderPollInterval},
		{"LeaseDuration", cfg.LeaseDuration},
		{"LeaseRenewInterval", cfg.LeaseRenewInterval},
		{"ResyncInterval", cfg.ResyncInterval},
		{"OperationTimeout", cfg.OperationTimeout},
		{"AssignmentTTL", cfg.KVBuckets.AssignmentTTL},
		{"FetchTimeout", cfg.Delivery.FetchTimeout},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be > 0, got %v", ErrInvalidConfig, d.name, d.value)
		}
	}

	if cfg.HeartbeatTTL < 2*cfg.HeartbeatInterval {
		return fmt.Errorf(
			"%w: HeartbeatTTL (%v) must be >= 2*HeartbeatInterval (%v) to allow one missed heartbeat",
			ErrInvalidConfig, cfg.HeartbeatTTL, cfg.HeartbeatInterval,
		)
	}

	if cfg.LeaseRenewInterval >= cfg.LeaseDuration/2 {
		return fmt.Errorf(
			"%w: LeaseRenewInterval (%v) must be < LeaseDuration/2 (%v)",
			ErrInvalidConfig, cfg.LeaseRenewInterval, cfg.LeaseDuration/2,
		)
	}

	if cfg.OperationTimeout >= cfg.LeaseDuration {
		return fmt.Errorf(
			"%w: OperationTimeout (%v) must be < LeaseDuration (%v)",
			ErrInvalidConfig, cfg.OperationTimeout, cfg.LeaseDuration,
		)
	}

	if cfg.KVBuckets.AssignmentTTL <= cfg.ResyncInterval {
		return fmt.Errorf(
			"%w: AssignmentTTL (%v) must be > ResyncInterval (%v) so live assignments never expire",
			ErrInvalidConfig, cfg.KVBuckets.AssignmentTTL, cfg.ResyncInterval,
		)
	}

	if cfg.Delivery.BatchSize <= 0 {
		return fmt.Errorf("%w: Delivery.BatchSize must be > 0, got %d", ErrInvalidConfig, cfg.Delivery.BatchSize)
	}

	return nil
}

// ValidateWithWarnings logs warnings for values that are legal but unwise.
//
// This is called after Validate() in NewConsumer() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.HeartbeatTTL < 3*cfg.HeartbeatInterval {
		logger.Warn(
			"HeartbeatTTL is below recommended 3x HeartbeatInterval",
			"heartbeatTTL", cfg.HeartbeatTTL,
			"heartbeatInterval", cfg.HeartbeatInterval,
			"recommended", 3*cfg.HeartbeatInterval,
		)
	}

	if cfg.MembershipPollInterval > cfg.HeartbeatInterval {
		logger.Warn(
			"MembershipPollInterval exceeds HeartbeatInterval, departures will be noticed late",
			"membershipPollInterval", cfg.MembershipPollInterval,
			"heartbeatInterval", cfg.HeartbeatInterval,
		)
	}

	if cfg.ResyncInterval > cfg.KVBuckets.AssignmentTTL/2 {
		logger.Warn(
			"ResyncInterval leaves little margin before assignments expire",
			"resyncInterval", cfg.ResyncInterval,
			"assignmentTTL", cfg.KVBuckets.AssignmentTTL,
			"recommended", cfg.KVBuckets.AssignmentTTL/3,
		)
	}

	if cfg.Delivery.FetchTimeout > cfg.HeartbeatTTL {
		logger.Warn(
			"FetchTimeout exceeds HeartbeatTTL, partition handover will lag behind membership",
			"fetchTimeout", cfg.Delivery.FetchTimeout,
			"heartbeatTTL", cfg.HeartbeatTTL,
		)
	}
}

// TestConfig returns a configuration with fast timings for tests, with
// PartitionCount set to partitions.
//
// Example:
//
//	cfg := partigroup.TestConfig(4)
//	consumer, err := partigroup.NewConsumer(&cfg, nc)
func TestConfig(partitions int) Config {
	cfg := DefaultConfig()

	cfg.PartitionCount = partitions
	cfg.HeartbeatInterval = 100 * time.Millisecond
	cfg.HeartbeatTTL = time.Second
	cfg.MembershipPollInterval = 20 * time.Millisecond
	cfg.AssignmentPollInterval = 20 * time.Millisecond
	cfg.LeaderPollInterval = 20 * time.Millisecond
	cfg.LeaseDuration = 2 * time.Second
	cfg.LeaseRenewInterval = 500 * time.Millisecond
	cfg.OperationTimeout = 500 * time.Millisecond
	cfg.ResyncInterval = 2 * time.Second
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.KVBuckets.AssignmentTTL = time.Minute
	cfg.Delivery.AckWait = 2 * time.Second
	cfg.Delivery.FetchTimeout = 200 * time.Millisecond

	return cfg
}

// LoadConfig reads a YAML configuration file, applies defaults and
// validates the result.
//
// Parameters:
//   - path: YAML file path
//
// Returns:
//   - *Config: The loaded configuration
//   - error: Read, parse or validation failure
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidConfig, path, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) coordinatorSettings() coordinator.Settings {
	return coordinator.Settings{
		PartitionCount:         cfg.PartitionCount,
		HeartbeatInterval:      cfg.HeartbeatInterval,
		MembershipPollInterval: cfg.MembershipPollInterval,
		AssignmentPollInterval: cfg.AssignmentPollInterval,
		LeaderPollInterval:     cfg.LeaderPollInterval,
		LeaseRenewInterval:     cfg.LeaseRenewInterval,
		ResyncInterval:         cfg.ResyncInterval,
		OperationTimeout:       cfg.OperationTimeout,
		WatchMembership:        cfg.WatchMembership,
	}
}

// Package kvutil provides helpers for NATS JetStream KeyValue buckets.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/internal/natsutil"
)

// EnsureBucket creates or opens a KV bucket, retrying transient failures.
//
// Members of one group start concurrently and race to create the same
// buckets; the loser of the race opens the winner's bucket. The bucket
// configuration of the first creator is authoritative, including its TTL.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: Bucket configuration
//   - maxRetries: Maximum attempts (3 if <= 0)
//
// Returns:
//   - jetstream.KeyValue: The bucket handle
//   - error: Failure after all attempts
//
// Example:
//
//	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "partigroup-heartbeat",
//	    History: 1,
//	    TTL:     3 * time.Second,
//	}, 3)
func EnsureBucket(ctx context.Context, js jetstream.JetStream, config jetstream.KeyValueConfig, maxRetries int) (jetstream.KeyValue, error) {
	var kv jetstream.KeyValue
	err := natsutil.Retry(ctx, maxRetries, 10*time.Millisecond, func(ctx context.Context) error {
		created, err := js.CreateKeyValue(ctx, config)
		if err == nil {
			kv = created
			return nil
		}

		if !errors.Is(err, jetstream.ErrBucketExists) {
			return err
		}

		opened, err := js.KeyValue(ctx, config.Bucket)
		if err != nil {
			return fmt.Errorf("bucket exists but failed to open: %w", err)
		}
		kv = opened

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/open KV bucket %s: %w", config.Bucket, err)
	}

	return kv, nil
}

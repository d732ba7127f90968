package kvutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/types"
)

// DurationRecorder receives KV operation latencies. It is satisfied by
// types.MetricsCollector.
type DurationRecorder interface {
	RecordKVOperationDuration(operation string, duration float64)
}

// ListKeys returns the live keys matching a NATS subject filter such as
// "group.orders.member.*.heartbeat". An empty bucket yields no keys and no error.
func ListKeys(ctx context.Context, kv jetstream.KeyValue, filter string) ([]string, error) {
	lister, err := kv.ListKeysFiltered(ctx, filter)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) || types.IsNoKeysFoundError(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list keys %q: %w", filter, err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case key, ok := <-lister.Keys():
			if !ok {
				return keys, nil
			}
			keys = append(keys, key)
		}
	}
}

// Segment returns the dot-separated token at index i of key, or "".
func Segment(key string, i int) string {
	parts := strings.Split(key, ".")
	if i < 0 || i >= len(parts) {
		return ""
	}

	return parts[i]
}

// Observe records the time elapsed since start under operation.
//
// Example:
//
//	defer kvutil.Observe(metrics, "put", time.Now())
func Observe(rec DurationRecorder, operation string, start time.Time) {
	if rec == nil {
		return
	}
	rec.RecordKVOperationDuration(operation, time.Since(start).Seconds())
}

package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/internal/keys"
	"github.com/arloliu/partigroup/internal/kvutil"
	"github.com/arloliu/partigroup/internal/logging"
	"github.com/arloliu/partigroup/internal/metrics"
	"github.com/arloliu/partigroup/types"
)

// Manager reads and writes assignment records.
type Manager struct {
	kv      jetstream.KeyValue
	logger  types.Logger
	metrics types.MetricsCollector
}

// NewManager creates an assignment manager on the assignment bucket.
//
// Parameters:
//   - kv: Assignment bucket
//   - logger: Logger (nil for no-op)
//   - mc: Metrics collector (nil for no-op)
func NewManager(kv jetstream.KeyValue, logger types.Logger, mc types.MetricsCollector) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if mc == nil {
		mc = metrics.NewNop()
	}

	return &Manager{kv: kv, logger: logger, metrics: mc}
}

// WriteAssignment stores a member's record, overwriting any previous one
// and restarting its TTL.
func (m *Manager) WriteAssignment(ctx context.Context, groupID, memberID string, record types.Assignment) error {
	defer kvutil.Observe(m.metrics, "put", time.Now())

	record.Partitions = record.PartitionSet().Slice()
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrWriteAssignment, err)
	}

	if _, err := m.kv.Put(ctx, keys.Assignment(groupID, memberID), data); err != nil {
		return fmt.Errorf("%w for %s/%s: %w", types.ErrWriteAssignment, groupID, memberID, err)
	}

	return nil
}

// ReadAssignment returns a member's partitions, or the empty set when the
// record is absent or expired.
func (m *Manager) ReadAssignment(ctx context.Context, groupID, memberID string) (types.PartitionSet, error) {
	record, found, err := m.ReadRecord(ctx, groupID, memberID)
	if err != nil || !found {
		return types.PartitionSet{}, err
	}

	return record.PartitionSet(), nil
}

// ReadRecord returns a member's full record.
//
// Returns:
//   - types.Assignment: The record (zero value when not found)
//   - bool: false when the record is absent or expired
//   - error: Store or decoding failure, wrapping types.ErrReadAssignment
func (m *Manager) ReadRecord(ctx context.Context, groupID, memberID string) (types.Assignment, bool, error) {
	defer kvutil.Observe(m.metrics, "get", time.Now())

	entry, err := m.kv.Get(ctx, keys.Assignment(groupID, memberID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return types.Assignment{}, false, nil
		}

		return types.Assignment{}, false, fmt.Errorf("%w for %s/%s: %w", types.ErrReadAssignment, groupID, memberID, err)
	}

	var record types.Assignment
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return types.Assignment{}, false, fmt.Errorf("%w: malformed record %s: %w", types.ErrReadAssignment, entry.Key(), err)
	}

	return record, true, nil
}

// ReadAllAssignments returns every record currently present for a group,
// keyed by member id. Malformed records are logged and skipped.
func (m *Manager) ReadAllAssignments(ctx context.Context, groupID string) (map[string]types.Assignment, error) {
	start := time.Now()
	found, err := kvutil.ListKeys(ctx, m.kv, keys.AssignmentFilter(groupID))
	kvutil.Observe(m.metrics, "keys", start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrReadAssignment, err)
	}

	records := make(map[string]types.Assignment, len(found))
	for _, key := range found {
		memberID := keys.MemberFromAssignment(key)
		record, ok, err := m.ReadRecord(ctx, groupID, memberID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			m.logger.Warn("skipping unreadable assignment record", "key", key, "error", err)

			continue
		}
		if ok {
			records[memberID] = record
		}
	}

	return records, nil
}

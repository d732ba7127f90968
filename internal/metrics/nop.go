// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/arloliu/partigroup/types"

// NopMetrics discards every metric. It is the default collector.
type NopMetrics struct{}

var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a no-op collector.
//
// Example:
//
//	consumer, err := partigroup.NewConsumer(&cfg, nc, partigroup.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// MemberMetrics

func (n *NopMetrics) RecordHeartbeat(_ /* groupID */ string, _ /* success */ bool)            {}
func (n *NopMetrics) RecordActiveMembers(_ /* groupID */ string, _ /* count */ int)           {}
func (n *NopMetrics) RecordKVOperationDuration(_ /* operation */ string, _ /* dur */ float64) {}

// CoordinatorMetrics

func (n *NopMetrics) RecordLeadershipChange(_ /* groupID */ string, _ /* role */ types.Role) {}

func (n *NopMetrics) RecordRebalance(_ /* groupID */, _ /* reason */ string, _ /* duration */ float64, _ /* success */ bool) {
}

func (n *NopMetrics) RecordAssignmentDrift(_ /* groupID */ string, _ /* stale */, _ /* mismatched */ int) {
}

// ConsumerMetrics

func (n *NopMetrics) RecordOwnedPartitions(_ /* groupID */ string, _ /* count */ int) {}

func (n *NopMetrics) RecordPartitionChange(_ /* groupID */ string, _ /* added */, _ /* removed */ int) {
}

func (n *NopMetrics) RecordMessage(_ /* destination */, _ /* result */ string) {}

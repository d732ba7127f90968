package metrics

import (
	"sync"

	"github.com/arloliu/partigroup/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector with Prometheus
// collectors. Collectors are created and registered on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	heartbeats      *prometheus.CounterVec
	activeMembers   *prometheus.GaugeVec
	kvLatency       *prometheus.HistogramVec
	leadership      *prometheus.GaugeVec
	leaderChanges   *prometheus.CounterVec
	rebalances      *prometheus.CounterVec
	rebalanceTime   *prometheus.HistogramVec
	drift           *prometheus.CounterVec
	ownedPartitions *prometheus.GaugeVec
	partitionMoves  *prometheus.CounterVec
	messages        *prometheus.CounterVec
}

var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a Prometheus-backed collector.
//
// Parameters:
//   - reg: Registerer to register with (prometheus.DefaultRegisterer if nil)
//   - namespace: Metric namespace ("partigroup" if empty)
//
// Returns:
//   - *PrometheusCollector: Collector ready to pass to WithMetrics
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "partigroup"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.heartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "member",
			Name:      "heartbeats_total",
			Help:      "Liveness writes by group and result (success, failure).",
		}, []string{"group", "result"})
		p.activeMembers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "member",
			Name:      "active",
			Help:      "Live members observed in the group.",
		}, []string{"group"})
		p.kvLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "kv",
			Name:      "operation_duration_seconds",
			Help:      "Latency of KV operations by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
		}, []string{"op"})

		p.leadership = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "is_leader",
			Help:      "1 while this member leads the group.",
		}, []string{"group"})
		p.leaderChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "role_changes_total",
			Help:      "Role transitions by group and new role.",
		}, []string{"group", "role"})
		p.rebalances = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "rebalances_total",
			Help:      "Rebalance runs by group, reason and result.",
		}, []string{"group", "reason", "result"})
		p.rebalanceTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "rebalance_duration_seconds",
			Help:      "Time to compute and write an assignment.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"group"})
		p.drift = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "assignment_drift_total",
			Help:      "Assignment records found stale or mismatched before a rebalance.",
		}, []string{"group", "kind"})

		p.ownedPartitions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "consumer",
			Name:      "owned_partitions",
			Help:      "Partitions currently owned by the subscription.",
		}, []string{"group"})
		p.partitionMoves = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "consumer",
			Name:      "partition_changes_total",
			Help:      "Partitions gained (added) and lost (removed) by the subscription.",
		}, []string{"group", "kind"})
		p.messages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Handled messages by destination and result (ack, nak, not_owned).",
		}, []string{"destination", "result"})

		p.reg.MustRegister(
			p.heartbeats, p.activeMembers, p.kvLatency,
			p.leadership, p.leaderChanges, p.rebalances, p.rebalanceTime, p.drift,
			p.ownedPartitions, p.partitionMoves, p.messages,
		)
	})
}

// RecordHeartbeat counts a liveness write.
func (p *PrometheusCollector) RecordHeartbeat(groupID string, success bool) {
	p.ensureRegistered()
	p.heartbeats.WithLabelValues(groupID, result(success)).Inc()
}

// RecordActiveMembers sets the live member gauge.
func (p *PrometheusCollector) RecordActiveMembers(groupID string, count int) {
	p.ensureRegistered()
	p.activeMembers.WithLabelValues(groupID).Set(float64(count))
}

// RecordKVOperationDuration observes KV latency.
func (p *PrometheusCollector) RecordKVOperationDuration(operation string, duration float64) {
	p.ensureRegistered()
	p.kvLatency.WithLabelValues(operation).Observe(duration)
}

// RecordLeadershipChange flips the leader gauge and counts the transition.
func (p *PrometheusCollector) RecordLeadershipChange(groupID string, role types.Role) {
	p.ensureRegistered()
	if role == types.RoleLeader {
		p.leadership.WithLabelValues(groupID).Set(1)
	} else {
		p.leadership.WithLabelValues(groupID).Set(0)
	}
	p.leaderChanges.WithLabelValues(groupID, role.String()).Inc()
}

// RecordRebalance counts a rebalance and observes its duration.
func (p *PrometheusCollector) RecordRebalance(groupID, reason string, duration float64, success bool) {
	p.ensureRegistered()
	p.rebalances.WithLabelValues(groupID, reason, result(success)).Inc()
	p.rebalanceTime.WithLabelValues(groupID).Observe(duration)
}

// RecordAssignmentDrift counts stale and mismatched records.
func (p *PrometheusCollector) RecordAssignmentDrift(groupID string, stale, mismatched int) {
	p.ensureRegistered()
	p.drift.WithLabelValues(groupID, "stale").Add(float64(stale))
	p.drift.WithLabelValues(groupID, "mismatched").Add(float64(mismatched))
}

// RecordOwnedPartitions sets the owned partition gauge.
func (p *PrometheusCollector) RecordOwnedPartitions(groupID string, count int) {
	p.ensureRegistered()
	p.ownedPartitions.WithLabelValues(groupID).Set(float64(count))
}

// RecordPartitionChange counts partitions gained and lost.
func (p *PrometheusCollector) RecordPartitionChange(groupID string, added, removed int) {
	p.ensureRegistered()
	p.partitionMoves.WithLabelValues(groupID, "added").Add(float64(added))
	p.partitionMoves.WithLabelValues(groupID, "removed").Add(float64(removed))
}

// RecordMessage counts a handled message.
func (p *PrometheusCollector) RecordMessage(destination, res string) {
	p.ensureRegistered()
	p.messages.WithLabelValues(destination, res).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

package types

// MetricsCollector records operational metrics.
//
// Implementations must be safe for concurrent use and must not block.
type MetricsCollector interface {
	MemberMetrics
	CoordinatorMetrics
	ConsumerMetrics
}

// MemberMetrics covers liveness and membership tracking.
type MemberMetrics interface {
	// RecordHeartbeat records one liveness write attempt.
	RecordHeartbeat(groupID string, success bool)

	// RecordActiveMembers sets the live member count observed for a group.
	RecordActiveMembers(groupID string, count int)

	// RecordKVOperationDuration records store latency.
	//
	// Parameters:
	//   - operation: "put", "get", "delete", "create", "update" or "keys"
	//   - duration: Time taken in seconds
	RecordKVOperationDuration(operation string, duration float64)
}

// CoordinatorMetrics covers leadership and rebalancing.
type CoordinatorMetrics interface {
	// RecordLeadershipChange records a role transition for a group.
	RecordLeadershipChange(groupID string, role Role)

	// RecordRebalance records one rebalance run.
	//
	// Parameters:
	//   - reason: "leader_elected", "membership_changed" or "resync"
	//   - duration: Time taken in seconds
	//   - success: true if every record was written
	RecordRebalance(groupID, reason string, duration float64, success bool)

	// RecordAssignmentDrift records records found inconsistent with the
	// computed assignment before a rebalance corrected them.
	RecordAssignmentDrift(groupID string, stale, mismatched int)
}

// ConsumerMetrics covers the delivery path.
type ConsumerMetrics interface {
	// RecordOwnedPartitions sets how many partitions a subscription owns.
	RecordOwnedPartitions(groupID string, count int)

	// RecordPartitionChange records partitions gained and lost by a subscription.
	RecordPartitionChange(groupID string, added, removed int)

	// RecordMessage records one handled message.
	//
	// Parameters:
	//   - result: "ack", "nak" or "not_owned"
	RecordMessage(destination, result string)
}

// Package types holds the shared types and interfaces of partigroup.
//
// The types live here so the root package and the internal coordination
// packages can depend on them without import cycles.
//
// Key types:
//   - PartitionSet: sorted, deduplicated set of partition indices
//   - Assignment: leader-written partition record for one member
//   - Role: follower/leader role of a coordinator
//   - Message: a partitioned message handed to subscription handlers
//   - LeaseLock: lease-based mutual exclusion used for leader selection
//   - Logger, MetricsCollector, Hooks: pluggable observability surfaces
package types

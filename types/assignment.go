package types

import "time"

// Assignment is the record the leader writes for one member of a group.
//
// Members only ever consume the partitions listed in their own record.
type Assignment struct {
	// Partitions holds the owned partition indices in ascending order.
	Partitions []int `json:"partitions"`

	// Leader is the member id of the leader that wrote the record.
	Leader string `json:"leader"`

	// Version is the writing leader's rebalance counter.
	// It is informational; listeners compare partition sets only.
	Version int64 `json:"version"`

	// AssignedAt is the time the leader computed the assignment.
	AssignedAt time.Time `json:"assignedAt"`
}

// PartitionSet returns the record's partitions as a set.
func (a Assignment) PartitionSet() PartitionSet {
	return NewPartitionSet(a.Partitions...)
}

package strategy

import (
	"slices"

	"github.com/arloliu/partigroup/types"
)

// RoundRobin assigns partitions by index modulo the sorted member count.
type RoundRobin struct{}

var _ types.AssignmentStrategy = (*RoundRobin)(nil)

// NewRoundRobin creates the round-robin strategy.
//
// Example:
//
//	assignments, _ := strategy.NewRoundRobin().Assign([]string{"b", "a"}, 5)
//	// a: [0 2 4], b: [1 3]
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Assign computes the round-robin assignment.
//
// An empty member list yields an empty map (nothing to assign to), and
// fewer partitions than members leaves the trailing members with empty
// sets. Duplicate member ids are collapsed.
func (rr *RoundRobin) Assign(members []string, partitionCount int) (map[string]types.PartitionSet, error) {
	if partitionCount < 0 {
		return nil, ErrInvalidPartitionCount
	}

	sorted := slices.Clone(members)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	n := len(sorted)
	result := make(map[string]types.PartitionSet, n)
	if n == 0 {
		return result, nil
	}

	buckets := make([][]int, n)
	for p := range partitionCount {
		buckets[p%n] = append(buckets[p%n], p)
	}
	for i, member := range sorted {
		result[member] = types.NewPartitionSet(buckets[i]...)
	}

	return result, nil
}

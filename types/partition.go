package types

import (
	"slices"
	"strconv"
	"strings"
)

// PartitionSet is an immutable, sorted set of partition indices.
//
// The zero value is the empty set. Constructors always sort and deduplicate,
// so two sets holding the same partitions compare equal regardless of the
// order they were built in.
type PartitionSet struct {
	parts []int
}

// NewPartitionSet builds a set from the given indices.
//
// Parameters:
//   - partitions: Partition indices in any order, duplicates allowed
//
// Returns:
//   - PartitionSet: The sorted, deduplicated set
func NewPartitionSet(partitions ...int) PartitionSet {
	if len(partitions) == 0 {
		return PartitionSet{}
	}

	parts := slices.Clone(partitions)
	slices.Sort(parts)

	return PartitionSet{parts: slices.Compact(parts)}
}

// Len returns the number of partitions in the set.
func (s PartitionSet) Len() int {
	return len(s.parts)
}

// IsEmpty reports whether the set holds no partitions.
func (s PartitionSet) IsEmpty() bool {
	return len(s.parts) == 0
}

// Contains reports whether partition p is in the set.
func (s PartitionSet) Contains(p int) bool {
	_, found := slices.BinarySearch(s.parts, p)
	return found
}

// Slice returns a copy of the partitions in ascending order.
func (s PartitionSet) Slice() []int {
	if len(s.parts) == 0 {
		return []int{}
	}

	return slices.Clone(s.parts)
}

// Equal reports whether both sets hold exactly the same partitions.
func (s PartitionSet) Equal(other PartitionSet) bool {
	return slices.Equal(s.parts, other.parts)
}

// Diff compares s (the new set) against prev and reports which partitions
// were added and which were removed.
//
// Parameters:
//   - prev: The previously observed set
//
// Returns:
//   - added: Partitions in s but not in prev
//   - removed: Partitions in prev but not in s
func (s PartitionSet) Diff(prev PartitionSet) (added, removed []int) {
	i, j := 0, 0
	for i < len(s.parts) && j < len(prev.parts) {
		switch {
		case s.parts[i] == prev.parts[j]:
			i++
			j++
		case s.parts[i] < prev.parts[j]:
			added = append(added, s.parts[i])
			i++
		default:
			removed = append(removed, prev.parts[j])
			j++
		}
	}
	added = append(added, s.parts[i:]...)
	removed = append(removed, prev.parts[j:]...)

	return added, removed
}

// String renders the set as "[0 2 4]".
func (s PartitionSet) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range s.parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(p))
	}
	b.WriteByte(']')

	return b.String()
}

package types

// AssignmentStrategy maps the live members of a group onto its partitions.
//
// Implementations must be deterministic: the same member set and partition
// count always produce the same result, whichever member computes it.
type AssignmentStrategy interface {
	// Assign computes the partition set of every member.
	//
	// Parameters:
	//   - members: Live member ids, in any order
	//   - partitionCount: Number of partitions P; partitions are 0..P-1
	//
	// Returns:
	//   - map[string]PartitionSet: One entry per member, possibly empty sets
	//   - error: Invalid input
	Assign(members []string, partitionCount int) (map[string]PartitionSet, error)
}

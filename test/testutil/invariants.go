package testutil

import (
	"fmt"
	"sort"
	"testing"
)

// AssertAssignmentsConsistent fails the test unless the assignments cover
// every partition in [0, partitionCount) exactly once.
//
// Parameters:
//   - t: testing handle
//   - assignments: member id -> owned partitions
//   - partitionCount: number of partitions P
func AssertAssignmentsConsistent(t testing.TB, assignments map[string][]int, partitionCount int) {
	t.Helper()

	if err := CheckAssignmentsConsistent(assignments, partitionCount); err != nil {
		t.Fatal(err)
	}
}

// CheckAssignmentsConsistent is the non-fatal form of
// AssertAssignmentsConsistent, for use inside require.Eventually.
func CheckAssignmentsConsistent(assignments map[string][]int, partitionCount int) error {
	owner := make(map[int]string, partitionCount)
	for member, parts := range assignments {
		for _, p := range parts {
			if p < 0 || p >= partitionCount {
				return fmt.Errorf("member %s owns partition %d outside [0,%d)", member, p, partitionCount)
			}
			if prev, dup := owner[p]; dup {
				return fmt.Errorf("partition %d owned by both %s and %s", p, prev, member)
			}
			owner[p] = member
		}
	}

	if len(owner) != partitionCount {
		var missing []int
		for p := range partitionCount {
			if _, ok := owner[p]; !ok {
				missing = append(missing, p)
			}
		}

		return fmt.Errorf("partitions %v are not owned by anyone", missing)
	}

	return nil
}

// AssertAssignmentsBalanced fails the test if any two members' partition
// counts differ by more than one.
func AssertAssignmentsBalanced(t testing.TB, assignments map[string][]int) {
	t.Helper()

	if len(assignments) == 0 {
		return
	}

	sizes := make([]int, 0, len(assignments))
	for _, parts := range assignments {
		sizes = append(sizes, len(parts))
	}
	sort.Ints(sizes)

	if sizes[len(sizes)-1]-sizes[0] > 1 {
		t.Fatalf("unbalanced assignment: partition counts range from %d to %d", sizes[0], sizes[len(sizes)-1])
	}
}

package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartition(t *testing.T) {
	t.Run("stable for the same key", func(t *testing.T) {
		for _, key := range []string{"customer-1", "", "x"} {
			require.Equal(t, Partition(key, 16), Partition(key, 16))
		}
	})

	t.Run("within range", func(t *testing.T) {
		for i := range 1000 {
			p := Partition(fmt.Sprintf("key-%d", i), 7)
			require.GreaterOrEqual(t, p, 0)
			require.Less(t, p, 7)
		}
	})

	t.Run("spreads keys", func(t *testing.T) {
		counts := make([]int, 8)
		for i := range 8000 {
			counts[Partition(fmt.Sprintf("key-%d", i), 8)]++
		}
		for p, n := range counts {
			require.InDelta(t, 1000, n, 200, "partition %d", p)
		}
	})

	t.Run("single partition", func(t *testing.T) {
		require.Zero(t, Partition("anything", 1))
	})
}

func TestPartitionSeed(t *testing.T) {
	require.Equal(t, Partition("k", 32), PartitionSeed("k", 32, 0))

	differs := false
	for i := range 50 {
		key := fmt.Sprintf("key-%d", i)
		if PartitionSeed(key, 32, 42) != Partition(key, 32) {
			differs = true
			break
		}
	}
	require.True(t, differs, "seeded layout should differ from the unseeded one")
}

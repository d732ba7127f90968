// Package hash maps routing keys onto partitions.
package hash

import "github.com/zeebo/xxh3"

// Partition returns the partition in [0, n) that key routes to.
//
// The mapping depends only on the key bytes and n, so every producer sends
// a given key to the same partition. It panics if n <= 0.
func Partition(key string, n int) int {
	return int(xxh3.HashString(key) % uint64(n))
}

// PartitionSeed is Partition with a seeded hash, for callers that need a
// key layout independent of other producers.
func PartitionSeed(key string, n int, seed uint64) int {
	if seed == 0 {
		return Partition(key, n)
	}

	return int(xxh3.HashStringSeed(key, seed) % uint64(n))
}

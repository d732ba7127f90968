// Package assignment stores and observes leader-written partition records.
//
// Manager reads and writes one JSON record per (group, member) in a bucket
// whose TTL is a long safety net: the leader rewrites every live member's
// record on each rebalance and resync, so only records of vanished groups
// or departed members ever expire.
//
// Listener polls a single member's record and reports set changes. It is
// the only way a member learns which partitions it owns.
package assignment

// Package coordinator composes the per-member coordination components of
// one group: liveness, membership tracking, leader selection, the
// leader-only rebalance loop and the member's own assignment listener.
//
// Every member runs the same Coordinator. Only the member holding the
// group lease writes assignment records; all members, the leader
// included, learn their partitions through their assignment listener.
package coordinator

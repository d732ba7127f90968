// Package heartbeat keeps a group member's liveness key alive.
//
// A member is live while its key exists. The key lives in a bucket whose
// TTL is the heartbeat TTL, so a member that stops refreshing (crash,
// partition, overloaded process) drops out of the group on its own. No
// explicit deregistration is needed for correctness.
package heartbeat

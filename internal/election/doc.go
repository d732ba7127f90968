// Package election keeps at most one leader per group.
//
// NATSLock is a lease lock on a single key of a KV bucket whose TTL is the
// lease duration:
//   - Create acquires the lease only when the key is absent
//   - Update with the held revision renews it
//   - Delete guarded by the held revision releases it
//
// A holder that stops renewing loses the key when the bucket TTL expires,
// and any other participant may then acquire it.
//
// LeaderSelector turns a lock into a role loop: acquire, call onSelected,
// renew until renewal fails or Stop is called, call onRemoved exactly once,
// repeat.
package election

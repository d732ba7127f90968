package types

import "context"

// LeaseLock is a lease-based mutual exclusion primitive for one group.
//
// At most one holder may own the lease at a time. A holder that stops
// renewing loses the lease once it expires, after which any other
// participant may acquire it.
type LeaseLock interface {
	// Acquire tries to take the lease for holderID.
	//
	// Returns:
	//   - bool: true if the lease is now held by holderID
	//   - error: store failure (nil when the lease is simply held by someone else)
	Acquire(ctx context.Context, holderID string) (bool, error)

	// Renew extends a lease this participant holds.
	// Any error means the lease must be treated as lost.
	Renew(ctx context.Context) error

	// Release gives up the lease if it is still held by this participant.
	Release(ctx context.Context) error

	// Holder returns the current lease holder, or "" if the lease is free.
	Holder(ctx context.Context) (string, error)
}

// LeaseLockFactory creates a lease lock for the given group.
type LeaseLockFactory func(groupID string) (LeaseLock, error)

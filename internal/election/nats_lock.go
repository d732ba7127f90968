package election

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/partigroup/internal/keys"
	"github.com/arloliu/partigroup/types"
)

// NATSLock implements types.LeaseLock on a NATS KV key.
//
// The lease duration is the TTL of the bucket behind kv. All state is
// guarded by mu.
type NATSLock struct {
	kv  jetstream.KeyValue
	key string

	mu       sync.RWMutex
	holderID string
	revision uint64
	held     bool
}

var _ types.LeaseLock = (*NATSLock)(nil)

// NewNATSLock creates a lease lock for a group.
//
// Parameters:
//   - kv: Election bucket, with TTL equal to the lease duration
//   - groupID: Group whose leadership the lock guards
//
// Returns:
//   - *NATSLock: An unheld lock
//
// Example:
//
//	kv, _ := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "partigroup-election",
//	    History: 1,
//	    TTL:     10 * time.Second,
//	}, 3)
//	lock := election.NewNATSLock(kv, "orders")
func NewNATSLock(kv jetstream.KeyValue, groupID string) *NATSLock {
	return &NATSLock{kv: kv, key: keys.Leader(groupID)}
}

// Acquire tries to take the lease for holderID.
//
// If the key already names holderID (a renewal failed but the lease has
// not expired yet), the lease is reclaimed with a revision-checked update.
func (l *NATSLock) Acquire(ctx context.Context, holderID string) (bool, error) {
	rev, err := l.kv.Create(ctx, l.key, []byte(holderID))
	if err == nil {
		l.setHeld(holderID, rev)
		return true, nil
	}

	if !errors.Is(err, jetstream.ErrKeyExists) {
		return false, fmt.Errorf("failed to create leader key: %w", err)
	}

	entry, err := l.kv.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			// Expired between Create and Get; retried on the next attempt.
			return false, nil
		}

		return false, fmt.Errorf("failed to read leader key: %w", err)
	}

	if string(entry.Value()) != holderID {
		return false, nil
	}

	rev, err = l.kv.Update(ctx, l.key, []byte(holderID), entry.Revision())
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return false, nil
		}

		return false, fmt.Errorf("failed to reclaim leader key: %w", err)
	}
	l.setHeld(holderID, rev)

	return true, nil
}

// Renew extends the held lease. Any failure clears the held state and is
// reported as types.ErrLeadershipLost.
func (l *NATSLock) Renew(ctx context.Context) error {
	held, holderID, rev := l.state()
	if !held {
		return types.ErrNotLeader
	}

	newRev, err := l.kv.Update(ctx, l.key, []byte(holderID), rev)
	if err != nil {
		l.clear()
		return fmt.Errorf("%w: %w", types.ErrLeadershipLost, err)
	}

	l.mu.Lock()
	l.revision = newRev
	l.mu.Unlock()

	return nil
}

// Release deletes the leader key if it still carries the held revision, so
// a lease already taken over by someone else is left untouched.
func (l *NATSLock) Release(ctx context.Context) error {
	held, _, rev := l.state()
	if !held {
		return nil
	}
	l.clear()

	err := l.kv.Delete(ctx, l.key, jetstream.LastRevision(rev))
	if err == nil || errors.Is(err, jetstream.ErrKeyNotFound) || isWrongRevision(err) {
		return nil
	}

	return fmt.Errorf("failed to delete leader key: %w", err)
}

func isWrongRevision(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}

// Holder returns the current lease holder, or "" if the lease is free.
func (l *NATSLock) Holder(ctx context.Context) (string, error) {
	entry, err := l.kv.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", nil
		}

		return "", fmt.Errorf("failed to read leader key: %w", err)
	}

	return string(entry.Value()), nil
}

// IsHeld reports whether this lock believes it holds the lease.
func (l *NATSLock) IsHeld() bool {
	held, _, _ := l.state()
	return held
}

func (l *NATSLock) state() (held bool, holderID string, revision uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.held, l.holderID, l.revision
}

func (l *NATSLock) setHeld(holderID string, revision uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = true
	l.holderID = holderID
	l.revision = revision
}

func (l *NATSLock) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = false
}

// NewNATSLockFactory returns a types.LeaseLockFactory handing out NATSLocks
// on kv.
func NewNATSLockFactory(kv jetstream.KeyValue) types.LeaseLockFactory {
	return func(groupID string) (types.LeaseLock, error) {
		return NewNATSLock(kv, groupID), nil
	}
}

// leaseTimeout bounds a single lock call made from the selector loop.
func leaseTimeout(renewInterval time.Duration) time.Duration {
	return max(renewInterval/2, 50*time.Millisecond)
}

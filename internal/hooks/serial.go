package hooks

import (
	"context"
	"sync"
)

type serialKey struct{}

// Serial runs submitted callbacks one at a time, in submission order, on a
// dedicated goroutine.
//
// Submit never blocks, so a slow or re-entrant callback cannot stall the
// loop that produced the event. Each callback receives a context marking
// it as running on this dispatcher; Wait called with that context returns
// at once instead of waiting for itself.
type Serial struct {
	mu      sync.Mutex
	pending []func(context.Context)
	closed  bool

	ctx  context.Context
	wake chan struct{}
	done chan struct{}
}

// NewSerial starts a dispatcher. Close it to release its goroutine.
func NewSerial() *Serial {
	s := &Serial{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.ctx = context.WithValue(context.Background(), serialKey{}, s)
	go s.run()

	return s
}

// Submit queues fn behind every earlier submission. It reports false, and
// drops fn, once Close was called.
func (s *Serial) Submit(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.pending = append(s.pending, fn)
	s.mu.Unlock()

	s.signal()

	return true
}

// Close stops accepting callbacks. Callbacks already queued still run.
// Close is idempotent.
func (s *Serial) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.signal()
}

// Wait blocks until the queue has drained after Close, or ctx ends.
//
// When ctx descends from the context handed to one of this dispatcher's
// callbacks, Wait returns nil immediately: the remaining callbacks run once
// the current one returns.
func (s *Serial) Wait(ctx context.Context) error {
	if ctx.Value(serialKey{}) == s {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Serial) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Serial) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		closed := s.closed
		s.mu.Unlock()

		for _, fn := range batch {
			fn(s.ctx)
		}

		// Everything submitted before Close was in this batch.
		if closed {
			return
		}
		if len(batch) > 0 {
			continue
		}
		<-s.wake
	}
}

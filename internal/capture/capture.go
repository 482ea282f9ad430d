// Package capture provides the single-assignment result box that decouples
// the caller from the worker's background completion work.
//
// A Box is written exactly once by the worker and read any number of times by
// the caller and any other observers. The first Set wins; later writes are
// silent no-ops. Waiters block until the value is captured and all observe
// the same value.
package capture

import (
	"context"
	"sync"
	"time"
)

// Box is a thread-safe, single-assignment container.
//
// The zero value is not usable; create one with New.
type Box[T any] struct {
	mu       sync.Mutex
	value    T
	captured bool
	done     chan struct{}
}

// New creates an empty Box.
func New[T any]() *Box[T] {
	return &Box[T]{
		done: make(chan struct{}),
	}
}

// Set captures the value. Only the first call has any effect; subsequent
// calls are no-ops. Returns true if this call performed the capture.
func (b *Box[T]) Set(value T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.captured {
		return false
	}
	b.value = value
	b.captured = true
	close(b.done)
	return true
}

// Get returns the captured value without blocking. The second return value
// reports whether a value has been captured.
func (b *Box[T]) Get() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.captured
}

// IsCaptured reports whether a value has been captured.
func (b *Box[T]) IsCaptured() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.captured
}

// Wait blocks until a value is captured or the context is done. A value is
// only ever returned together with a nil error; a context error means no
// value was available in time.
func (b *Box[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-b.done:
		value, _ := b.Get()
		return value, nil
	case <-ctx.Done():
		// The value may have been captured concurrently with cancellation;
		// prefer returning it if it exists.
		if value, ok := b.Get(); ok {
			return value, nil
		}
		var zero T
		return zero, ctx.Err()
	}
}

// WaitTimeout blocks for at most the given duration. It returns the captured
// value and true, or the zero value and false if the timeout elapsed first.
// A zero or negative duration performs a non-blocking peek, which is how a
// completed background state is reported opportunistically without delaying
// the caller.
func (b *Box[T]) WaitTimeout(timeout time.Duration) (T, bool) {
	if timeout <= 0 {
		return b.Get()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.done:
		value, _ := b.Get()
		return value, true
	case <-timer.C:
		return b.Get()
	}
}

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Bus distributes progress events to subscribers with filtering support.
//
// Thread safety: all methods are safe for concurrent use. Publish never
// blocks on slow subscribers; when a subscriber's buffer is full the event
// is dropped for that subscriber only.
type Bus interface {
	// Publish sends an event to all matching subscribers. Returns an error
	// only if the bus is closed.
	Publish(ctx context.Context, event Event) error

	// Subscribe creates a subscription with optional filtering. The cleanup
	// function must be called to prevent resource leaks. A nil filter
	// receives all events; bufferSize 0 uses the default.
	Subscribe(ctx context.Context, filter *Filter, bufferSize int) (<-chan Event, func())

	// Close shuts down the bus and all subscriptions.
	Close() error
}

const defaultBufferSize = 100

// InProcessBus implements Bus with buffered channels and non-blocking sends.
type InProcessBus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
	closed      bool
}

type subscription struct {
	id     string
	ch     chan Event
	filter *Filter
}

// NewBus creates an in-process event bus.
func NewBus() *InProcessBus {
	return &InProcessBus{
		subscribers: make(map[string]*subscription),
	}
}

// Publish sends the event to every matching subscriber without blocking.
func (b *InProcessBus) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber buffer full; drop for this subscriber only.
		}
	}

	return nil
}

// Subscribe registers a new subscriber and returns its channel plus a
// cleanup function.
func (b *InProcessBus) Subscribe(_ context.Context, filter *Filter, bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	sub := &subscription{
		id:     uuid.New().String(),
		ch:     make(chan Event, bufferSize),
		filter: filter,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		closed := make(chan Event)
		close(closed)
		return closed, func() {}
	}
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[sub.id]; ok {
			delete(b.subscribers, sub.id)
			close(s.ch)
		}
	}

	return sub.ch, cleanup
}

// Close shuts down the bus. Subsequent Publish calls return an error.
func (b *InProcessBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	return nil
}

// NopBus is a Bus that discards every event. It is the default when the
// engine is constructed without an event bus.
type NopBus struct{}

// Publish discards the event.
func (NopBus) Publish(context.Context, Event) error { return nil }

// Subscribe returns a channel that never receives.
func (NopBus) Subscribe(context.Context, *Filter, int) (<-chan Event, func()) {
	ch := make(chan Event)
	return ch, func() {}
}

// Close is a no-op.
func (NopBus) Close() error { return nil }

// Deduplicator tracks the highest sequence number processed per run so
// transport consumers can discard duplicate or out-of-order deliveries.
type Deduplicator struct {
	mu      sync.Mutex
	highest map[string]int
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{highest: make(map[string]int)}
}

// Accept reports whether the event should be processed. Events whose
// sequence number is less than or equal to the highest already processed for
// their run are rejected.
func (d *Deduplicator) Accept(event Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := event.RunID.String()
	if event.SequenceNumber <= d.highest[key] {
		return false
	}
	d.highest[key] = event.SequenceNumber
	return true
}

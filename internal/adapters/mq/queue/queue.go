// Package queue provides the bounded mailboxes behind stream aggregators
// and gateway sessions.
//
// A queue has a single consumer reading Dequeue. Producers either block for
// space (Put) or give up immediately when full (Enqueue).
package queue

import (
	"context"
	"sync"

	"github.com/okian/awards/pkg/metrics"
)

const defaultQueueCapacity = 256

// Queue is a bounded FIFO of T.
type Queue[T any] interface {
	// Put adds item, waiting for space. It fails with ErrClosed once the
	// queue is closed and with the context error if ctx ends first.
	Put(ctx context.Context, item T) error

	// Enqueue adds item without waiting. It returns false if the queue is
	// full or closed.
	Enqueue(item T) bool

	// Dequeue returns the receive side. It is closed after Close once the
	// remaining items are drained.
	Dequeue() <-chan T

	// Len returns the number of pending items.
	Len() int

	// Close stops accepting items. It is idempotent.
	Close() error

	// IsClosed reports whether Close was called.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue[T any] struct {
	name     string
	items    chan T
	capacity int

	// done is closed first on Close so blocked producers let go of mu.
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ Queue[int] = (*InMemoryQueue[int])(nil)

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	s := settings{name: "queue", capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&s)
	}

	q := &InMemoryQueue[T]{
		name:     s.name,
		items:    make(chan T, s.capacity),
		capacity: s.capacity,
		done:     make(chan struct{}),
	}
	metrics.UpdateMailboxDepth(q.name, 0)
	return q
}

// Put adds item, waiting for space.
func (q *InMemoryQueue[T]) Put(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordMailboxRejected(q.name, "closed")
		return ErrClosed
	}

	select {
	case q.items <- item:
		metrics.UpdateMailboxDepth(q.name, len(q.items))
		return nil
	case <-q.done:
		metrics.RecordMailboxRejected(q.name, "closed")
		return ErrClosed
	case <-ctx.Done():
		metrics.RecordMailboxRejected(q.name, "context_cancelled")
		return ctx.Err()
	}
}

// Enqueue adds item without waiting.
func (q *InMemoryQueue[T]) Enqueue(item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordMailboxRejected(q.name, "closed")
		return false
	}

	select {
	case q.items <- item:
		metrics.UpdateMailboxDepth(q.name, len(q.items))
		return true
	default:
		metrics.RecordMailboxRejected(q.name, "queue_full")
		return false
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue[T]) Dequeue() <-chan T {
	return q.items
}

// Len returns the number of pending items.
func (q *InMemoryQueue[T]) Len() int {
	size := len(q.items)
	metrics.UpdateMailboxDepth(q.name, size)
	return size
}

// Capacity returns the maximum number of pending items.
func (q *InMemoryQueue[T]) Capacity() int {
	return q.capacity
}

// Close stops accepting items.
func (q *InMemoryQueue[T]) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)

		q.mu.Lock()
		defer q.mu.Unlock()
		q.closed = true
		close(q.items)
	})
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

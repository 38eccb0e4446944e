// Package sink provides the bounded, thread-safe queues that sit between a
// playback session's decode goroutine and its consumers.
package sink

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned when pushing to or popping from a closed queue.
	ErrClosed = errors.New("sink: queue is closed")
	// ErrReset is returned to a producer whose blocked push was discarded by Reset.
	ErrReset = errors.New("sink: queue was reset")
)

// Queue is a bounded FIFO with blocking push and pop.
//
// Reset discards buffered items and wakes every waiter. Close does the same
// permanently: all further pushes and pops fail with ErrClosed once the
// queue has drained.
type Queue[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	items    []T
	capacity int

	// generation increments on every Reset so blocked pushers can tell
	// their item was dropped.
	generation uint64
	closed     bool
}

// NewQueue creates a queue holding at most capacity items. A capacity below
// one is raised to one.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item, blocking while the queue is full.
// Returns ErrReset if the queue was reset while waiting, and ErrClosed if it
// is or becomes closed.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	gen := q.generation
	for len(q.items) >= q.capacity {
		if q.closed {
			return ErrClosed
		}
		q.cond.Wait()
		if q.generation != gen {
			return ErrReset
		}
	}
	if q.closed {
		return ErrClosed
	}

	q.items = append(q.items, item)
	q.cond.Broadcast()
	return nil
}

// Pop removes and returns the oldest item, blocking while the queue is empty.
// Returns ErrClosed once the queue is closed and empty.
func (q *Queue[T]) Pop() (T, error) {
	return q.PopContext(context.Background())
}

// PopContext is Pop with cancellation.
func (q *Queue[T]) PopContext(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		var zero T
		if q.closed {
			return zero, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.cond.Wait()
	}
	return q.popLocked(), nil
}

// TryPop returns the oldest item without blocking. ok is false when the
// queue is empty.
func (q *Queue[T]) TryPop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item, false
	}
	return q.popLocked(), true
}

func (q *Queue[T]) popLocked() T {
	item := q.items[0]
	last := len(q.items) - 1
	copy(q.items, q.items[1:])
	var zero T
	q.items[last] = zero
	q.items = q.items[:last]
	q.cond.Broadcast()
	return item
}

// Reset discards buffered items and wakes all blocked producers and consumers.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	clear(q.items)
	q.items = q.items[:0]
	q.generation++
	q.cond.Broadcast()
}

// Close marks the queue unusable and wakes every waiter. Items already
// buffered can still be popped. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

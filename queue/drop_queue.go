// Package queue provides a bounded FIFO that rejects inserts when full
// instead of blocking the producer or evicting older entries.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrInvalidCapacity is returned by New for capacities below one.
var ErrInvalidCapacity = errors.New("queue capacity must be positive")

// DropQueue is safe for concurrent use by any number of producers and consumers.
// The buffered channel is the single synchronization point.
type DropQueue[T any] struct {
	items    chan T
	accepted atomic.Uint64
	dropped  atomic.Uint64
}

// Stats is a snapshot of admission counters.
type Stats struct {
	Accepted uint64
	Dropped  uint64
}

// New creates a queue holding at most capacity items
func New[T any](capacity int) (*DropQueue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &DropQueue[T]{items: make(chan T, capacity)}, nil
}

// TryEnqueue appends item unless the queue is full. It never blocks.
func (q *DropQueue[T]) TryEnqueue(item T) bool {
	select {
	case q.items <- item:
		q.accepted.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dequeue blocks until the oldest item is available or ctx is done
func (q *DropQueue[T]) Dequeue(ctx context.Context) (T, error) {
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Count returns the number of queued items. The value may be stale on return.
func (q *DropQueue[T]) Count() int {
	return len(q.items)
}

// IsFull reports whether a TryEnqueue issued now would be rejected.
func (q *DropQueue[T]) IsFull() bool {
	return len(q.items) == cap(q.items)
}

func (q *DropQueue[T]) Capacity() int {
	return cap(q.items)
}

func (q *DropQueue[T]) Stats() Stats {
	return Stats{
		Accepted: q.accepted.Load(),
		Dropped:  q.dropped.Load(),
	}
}

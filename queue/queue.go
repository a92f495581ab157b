// Package queue implements the bounded single-producer/single-consumer
// queues that connect pipeline stages (spec.md §5: "No shared mutable state
// between stages — all communication is queues").
package queue

import "context"

// Queue is a bounded FIFO backed by a buffered channel. Stages suspend on
// Push when full and on Pop when empty (spec.md §5 suspension points); both
// accept a context so a stage can be cancelled cleanly during shutdown.
type Queue[T any] struct {
	ch chan T
}

// New creates a Queue with the given capacity. Capacity must be >= 1; the
// caller is responsible for meeting the per-channel minima of spec.md §5
// (inter-stage data queues >= 8, checksum-buffer queue >= 256, metadata/
// tuple/length queues >= 2, notification buffer >= 32).
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Push blocks until there is room in the queue or ctx is cancelled. Pushing
// to a closed queue panics.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush attempts a non-blocking push, reporting whether the queue had
// room.
func (q *Queue[T]) TryPush(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Pop blocks until an item is available, ctx is cancelled, or the queue is
// closed and drained.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool, error) {
	var zero T
	select {
	case v, ok := <-q.ch:
		return v, ok, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// TryPop attempts a non-blocking pop, reporting whether an item was found.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case v, ok := <-q.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len reports the number of items currently buffered — used by
// pipeline/metrics to sample queue depth.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap reports the queue's configured capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Close closes the underlying channel. Only the producer side of a queue
// should call Close.
func (q *Queue[T]) Close() { close(q.ch) }

package stream

import "sync/atomic"

// Queue is a bounded single-producer/single-consumer ring.
//
// The producer (the audio thread) only touches tail and the consumer only
// touches head; each side reads the other's index atomically. Items are copied
// in and out by value, so pushing never allocates or locks. A full queue
// rejects the push instead of blocking. There is no wakeup: consumers poll
// with TryPop.
type Queue[T any] struct {
	slots []T
	mask  uint64
	head  atomic.Uint64
	tail  atomic.Uint64
}

// NewQueue creates a queue holding at least capacity items (rounded up to a
// power of two).
func NewQueue[T any](capacity int) *Queue[T] {
	size := 1
	for size < capacity {
		size <<= 1
	}

	return &Queue[T]{
		slots: make([]T, size),
		mask:  uint64(size - 1),
	}
}

// TryPush copies *item into the queue. It returns false if the queue is full.
func (q *Queue[T]) TryPush(item *T) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() == uint64(len(q.slots)) {
		return false
	}

	q.slots[tail&q.mask] = *item
	q.tail.Store(tail + 1)
	return true
}

// TryPop copies the oldest item into *dst. It returns false if the queue is empty.
func (q *Queue[T]) TryPop(dst *T) bool {
	head := q.head.Load()
	if head == q.tail.Load() {
		return false
	}

	*dst = q.slots[head&q.mask]
	q.head.Store(head + 1)
	return true
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Cap returns the queue capacity
func (q *Queue[T]) Cap() int {
	return len(q.slots)
}

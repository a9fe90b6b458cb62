// Package queue provides the unbounded event queue used to hand asynchronous events from socket readers
// to callback dispatchers.
package queue

import "sync/atomic"

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFreeQueue is an unbounded multi-producer multi-consumer FIFO queue (Michael-Scott algorithm).
// The zero value is not usable; create one with NewLockFreeQueue.
type LockFreeQueue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length atomic.Int32
}

// NewLockFreeQueue creates an empty queue.
func NewLockFreeQueue[T any]() *LockFreeQueue[T] {
	q := &LockFreeQueue[T]{}
	n := &node[T]{}
	q.head.Store(n)
	q.tail.Store(n)

	return q
}

// Enqueue adds item to the tail of the queue.
func (q *LockFreeQueue[T]) Enqueue(item T) {
	n := &node[T]{value: item}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next != nil {
			// tail is falling behind
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.length.Add(1)
			return
		}
	}
}

// Dequeue removes and returns the head of the queue. ok is false when the queue is empty.
func (q *LockFreeQueue[T]) Dequeue() (item T, ok bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				return item, false
			}
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		// read the value before the CAS, another consumer may advance past next
		v := next.value
		if q.head.CompareAndSwap(head, next) {
			var zero T
			next.value = zero
			q.length.Add(-1)
			return v, true
		}
	}
}

// IsEmpty reports whether the queue has no items.
func (q *LockFreeQueue[T]) IsEmpty() bool {
	return q.length.Load() == 0
}

// Length returns the number of queued items.
func (q *LockFreeQueue[T]) Length() int {
	return int(q.length.Load())
}

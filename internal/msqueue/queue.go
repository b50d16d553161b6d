// Package msqueue implements an intrusive, unbounded, multi-producer
// multi-consumer FIFO, after Michael and Scott, using a permanent divider
// node in place of a separately allocated dummy.
//
// Elements embed a [Node] and are enqueued by reference. A node must belong
// to at most one queue, and must not be enqueued twice. The ABA problem is
// not defended against: a node that is dequeued and re-enqueued while a slow
// consumer still holds a reference to it may be handed out out of order.
// Callers in this module only re-enqueue a node after they finished with it
// (one owner at a time), which keeps that window benign.
package msqueue

import (
	"sync/atomic"
)

// sizeOfCacheLine is generous, covering adjacent-line prefetch.
const sizeOfCacheLine = 128

type (
	// Node links an element of type T into a [Queue].
	Node[T any] struct {
		next  atomic.Pointer[Node[T]]
		value *T
	}

	// Queue is the lock-free FIFO. It must be initialised with [Queue.Init]
	// (or created via [New]) and must not be copied afterwards.
	//
	// betteralign:ignore
	Queue[T any] struct {
		_       [sizeOfCacheLine]byte
		head    atomic.Pointer[Node[T]]
		_       [sizeOfCacheLine - 8]byte
		tail    atomic.Pointer[Node[T]]
		_       [sizeOfCacheLine - 8]byte
		divider Node[T]
		// poison is never enqueued, its address marks detached nodes.
		poison Node[T]
	}
)

// New allocates and initialises a queue.
func New[T any]() *Queue[T] {
	q := new(Queue[T])
	q.Init()
	return q
}

// Init resets the queue to empty. It is not safe to call concurrently with
// any other method.
func (q *Queue[T]) Init() {
	q.divider.next.Store(nil)
	q.head.Store(&q.divider)
	q.tail.Store(&q.divider)
}

// InitNode binds n to value, marking it detached.
func (q *Queue[T]) InitNode(n *Node[T], value *T) {
	n.value = value
	n.next.Store(&q.poison)
}

// Detached reports whether n is currently outside the queue, i.e. it was
// dequeued (or never enqueued) and has not been put back.
func (q *Queue[T]) Detached(n *Node[T]) bool {
	return n.next.Load() == &q.poison
}

// Put appends n to the tail of the queue.
func (q *Queue[T]) Put(n *Node[T]) {
	n.next.Store(nil)
	var tail *Node[T]
	for {
		tail = q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				break
			}
		} else {
			// help a lagging producer
			q.tail.CompareAndSwap(tail, next)
		}
	}
	q.tail.CompareAndSwap(tail, n)
}

// Get removes and returns the element at the head of the queue, or nil if
// the queue is empty.
func (q *Queue[T]) Get() *T {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				return nil
			}
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if next == nil || next == &q.poison {
			// head was recycled underneath us
			continue
		}
		if !q.head.CompareAndSwap(head, next) {
			continue
		}
		if head == &q.divider {
			q.Put(head)
			continue
		}
		if !head.next.CompareAndSwap(next, &q.poison) {
			panic("msqueue: dequeued node modified concurrently")
		}
		return head.value
	}
}

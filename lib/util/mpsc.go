// This file implements a lock-free Multi-Producer Single-Consumer (MPSC)
// queue. It sits between the request handlers and the change-notification
// publisher: any number of goroutines may Push() concurrently without ever
// blocking on the consumer, while a single goroutine drains the queue
// through the Recv() channel.
//
// Guarantees:
//
//   - Lock-Free writes: atomic operations keep Push() cheap under contention
//   - Unbounded Size: limited only by available memory
//   - Single Consumer: exactly one goroutine may consume via Recv()
//   - No Strict FIFO under concurrent Push(): ordering is decided by which
//     producer finishes its append first

package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is a single element of the queue's linked list
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// MPSC is a lock-free multi-producer single-consumer queue built on a
// linked list with atomic append.
type MPSC[T any] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool

	// Condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond
}

// NewMPSC creates a new queue and starts its consumer goroutine.
func NewMPSC[T any]() *MPSC[T] {
	// sentinel node so head and tail are never nil
	sentinel := &node[T]{}

	q := &MPSC[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds an item to the queue. It returns false if the item is nil or
// the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *MPSC[T]) Push(value *T) bool {
	if value == nil {
		return false
	}
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var backoff uint8 = 0
	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			// the tail has no successor yet, try to append our node
			if tailNode.next.CompareAndSwap(nil, newNode) {
				/*
				 Successfully appended, now try to update tail.
				 The CAS may fail if another producer helps update the
				 tail first, which is fine: the tail catches up either way.
				*/
				q.tail.CompareAndSwap(tailNode, newNode)

				// wake the consumer
				q.cond.Signal()

				return true
			}
		} else {
			// help a producer that appended but has not updated tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff under contention: spin briefly at low retry
		 counts, then yield so other goroutines can make progress. The
		 growing backoff keeps producers from retrying in lockstep.
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume moves items from the linked list to the output channel.
func (q *MPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}

			hasItems = true
			value := next.value

			// advance head so the dequeued node can be collected
			q.head.Store(next)

			q.out <- value

			next.value = nil
		}

		// exit once closed and fully drained
		if !hasItems && q.closed.Load() {
			return
		}

		// nothing to do, wait for a producer's signal
		if !hasItems {
			q.mu.Lock()
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the receive-only channel the consumer drains from. The
// channel is closed after Close() once all remaining items were delivered.
func (q *MPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close prevents further writes. Items already queued are still delivered.
func (q *MPSC[T]) Close() {
	q.closed.Store(true)
	q.cond.Signal()
}

// IsClosed reports whether the queue is closed.
func (q *MPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

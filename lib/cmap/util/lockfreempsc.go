// Package util provides supporting primitives for the map packages: a
// lock-free Multi-Producer Single-Consumer (MPSC) queue used for change-event
// delivery, and seed/hash helpers.
//
// Queue guarantees:
//
//   - Lock-Free writes: atomic operations only, safe for any number of
//     concurrent Push() callers
//   - Unbounded: grows as needed, limited only by available memory
//   - Single Consumer: one goroutine drains the queue through the Recv()
//     channel
//   - Per-producer ordering: items of one producer arrive in push order;
//     interleaving between producers follows CAS completion order
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is a single element of the queue's linked list
type node[T interface{}] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue built on
// a linked list with atomic pointer swaps. A dedicated consumer goroutine
// moves items from the list onto the output channel.
type LockFreeMPSC[T interface{}] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool

	// Condition variable so the consumer can sleep while the queue is empty
	mu   sync.Mutex
	cond *sync.Cond
}

// NewLockFreeMPSC creates a new queue and starts its consumer goroutine.
func NewLockFreeMPSC[T interface{}]() *LockFreeMPSC[T] {
	// Sentinel node so head/tail are never nil
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
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
			// The tail has no successor yet, try to append our node
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// Appended. The tail CAS may lose to a helping producer,
				// which is fine: tail converges either way.
				q.tail.CompareAndSwap(tailNode, newNode)

				// Wake the consumer
				q.cond.Signal()
				return true
			}
		} else {
			// Another producer appended but hasn't moved tail yet; help it
			q.tail.CompareAndSwap(tailNode, next)
		}

		// Exponential backoff under contention: spin first, then yield, so
		// retrying producers don't stampede the same cache line.
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume moves items from the linked list to the output channel, releasing
// list nodes as it goes.
func (q *LockFreeMPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break // drained
			}
			hasItems = true

			value := next.value

			// Advance head before blocking on the send so the old node can
			// be collected
			q.head.Store(next)

			q.out <- value

			next.value = nil
		}

		// Exit once closed and fully drained
		if !hasItems && q.closed.Load() {
			return
		}

		// Nothing to do: sleep until a producer signals
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

// Recv returns a receive-only channel for consuming from the queue.
// This allows the queue to be used with the '<-' operator in select statements.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, preventing further writes.
// Items already queued are still delivered before the channel closes.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)
	q.cond.Signal()
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

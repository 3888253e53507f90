package engine

import (
	"sync"

	"github.com/roach88/ringtrail/internal/ping"
)

// ItemType distinguishes queued work.
type ItemType int

const (
	// ItemDelivery is presence state received from another replica.
	ItemDelivery ItemType = iota + 1
	// ItemPresence is a local presence stamp.
	ItemPresence
)

// Item is one unit of queued work.
type Item struct {
	Type     ItemType
	Delivery ping.Delivery
	Name     string
}

// itemQueue is a thread-safe unbounded FIFO queue.
//
// The queue uses a channel for signaling so the Run loop can wait on it
// alongside ctx.Done() and the heartbeat ticker.
type itemQueue struct {
	mu     sync.Mutex
	items  []Item
	closed bool
	signal chan struct{} // buffered, size 1
}

func newItemQueue() *itemQueue {
	return &itemQueue{
		items:  make([]Item, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Returns false if the queue is closed.
func (q *itemQueue) Enqueue(it Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, it)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front item without blocking.
func (q *itemQueue) TryDequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}
	it := q.items[0]
	// Clear the slot so the delivered state can be collected.
	q.items[0] = Item{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return it, true
}

// Wait returns a channel that fires when items may be available. It is
// closed by Close.
func (q *itemQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *itemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further enqueues and wakes waiters.
func (q *itemQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

package channel

import (
	"sync"
	"time"

	"github.com/illmade-knight/go-integration/pkg/message"
)

// queue is the FIFO store behind a SimpleChannel. Every enqueue and dequeue
// happens under mu, so capacity accounting is atomic.
//
// Waiters block on changed, which is closed and replaced whenever the contents
// change. A woken waiter re-checks its condition under the lock.
type queue struct {
	mu       sync.Mutex
	items    []*message.Message
	capacity int
	changed  chan struct{}
}

func newQueue(capacity int) *queue {
	return &queue{
		capacity: capacity,
		changed:  make(chan struct{}),
	}
}

// notify wakes all current waiters. Must be called with mu held.
func (q *queue) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// offer appends msg, waiting up to timeout for space. A zero timeout tries once
// and a negative timeout waits indefinitely.
func (q *queue) offer(msg *message.Message, timeout time.Duration) bool {
	expired, stop := deadline(timeout)
	defer stop()

	for {
		q.mu.Lock()
		if q.capacity == 0 || len(q.items) < q.capacity {
			q.items = append(q.items, msg)
			q.notify()
			q.mu.Unlock()
			return true
		}
		if timeout == 0 {
			q.mu.Unlock()
			return false
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			return false
		}
	}
}

// poll removes the head of the queue, waiting up to timeout for one to arrive.
func (q *queue) poll(timeout time.Duration) *message.Message {
	expired, stop := deadline(timeout)
	defer stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			head := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.notify()
			q.mu.Unlock()
			return head
		}
		if timeout == 0 {
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			return nil
		}
	}
}

func (q *queue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// deadline returns a channel that fires after timeout. For zero or negative
// timeouts the channel is nil and never fires.
func deadline(timeout time.Duration) (<-chan time.Time, func()) {
	if timeout <= 0 {
		return nil, func() {}
	}
	timer := time.NewTimer(timeout)
	return timer.C, func() { timer.Stop() }
}

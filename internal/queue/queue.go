// Package queue implements the unbounded FIFO ingestion queue between the
// reply resolver and the batch scheduler.
package queue

import (
	"sync"
	"time"

	"streambot/internal/domain"
)

// Queue is an unbounded FIFO of pending requests. Enqueue never blocks and
// never drops; the memory trade-off is deliberate so user messages survive
// load spikes. Dequeue order matches enqueue order exactly.
type Queue struct {
	mu     sync.Mutex
	items  []domain.PendingRequest
	notify chan struct{}
}

func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends a request. It never blocks.
func (q *Queue) Enqueue(req domain.PendingRequest) {
	q.mu.Lock()
	q.items = append(q.items, req)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// DequeueTimeout blocks until an item is available or the timeout elapses.
// On timeout it returns ok=false without error.
func (q *Queue) DequeueTimeout(timeout time.Duration) (domain.PendingRequest, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if req, ok := q.tryDequeue(); ok {
			return req, true
		}
		select {
		case <-q.notify:
			// Woken up; re-check under the lock.
		case <-timer.C:
			return domain.PendingRequest{}, false
		}
	}
}

func (q *Queue) tryDequeue() (domain.PendingRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return domain.PendingRequest{}, false
	}
	req := q.items[0]
	q.items = q.items[1:]

	// A single notify signal can be consumed by one waiter while more
	// items remain; re-arm so the next waiter wakes promptly.
	if len(q.items) > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return req, true
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

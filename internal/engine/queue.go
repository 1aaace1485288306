package engine

import (
	"sync"
	"time"
)

// Mode selects what a triggered job does.
type Mode string

const (
	// ModeScan scans the data root; the scanner refreshes when files change.
	ModeScan Mode = "scan"
	// ModeRefresh recomputes scores without touching the data root.
	ModeRefresh Mode = "refresh"
)

// Trigger is one request for background work.
type Trigger struct {
	Reason string
	Mode   Mode
	At     time.Time
}

// triggerQueue is a bounded, thread-safe FIFO of triggers.
//
// The scheduler uses it with capacity 1: combined with the in-flight flag it
// holds at most the one trigger that won the race.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the worker loop.
type triggerQueue struct {
	mu       sync.Mutex
	items    []Trigger
	capacity int
	closed   bool
	signal   chan struct{} // buffered, size 1
}

// newTriggerQueue creates an empty queue holding at most capacity triggers.
func newTriggerQueue(capacity int) *triggerQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &triggerQueue{
		items:    make([]Trigger, 0, capacity),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a trigger to the back of the queue.
// Returns false if the queue is full or closed.
func (q *triggerQueue) Enqueue(tr Trigger) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.items) >= q.capacity {
		return false
	}

	q.items = append(q.items, tr)

	// Non-blocking: the 1-slot buffer coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Trigger{}, false) if the queue is empty.
func (q *triggerQueue) TryDequeue() (Trigger, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Trigger{}, false
	}

	tr := q.items[0]
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
	return tr, true
}

// Wait returns a channel that signals when triggers may be available.
// The channel is closed by Close.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *triggerQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *triggerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more triggers will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *triggerQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Package eventqueue moves MIDI input events from endpoint threads into the render thread.
//
// Producers append to a pending list under a blocking lock. The render thread only ever
// tries the lock; when it wins it splices pending into the ready list and drains it.
// Both lists are pre-allocated and swapped rather than copied, so the render side does not
// allocate once the queue has warmed up.
package eventqueue

import (
	"sync"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
)

// DefaultCapacity is the number of events pre-allocated on each side.
const DefaultCapacity = 512

// Queue is a lock-guarded pending/ready double buffer.
type Queue struct {
	mu      sync.Mutex
	pending []contracts.RawMIDIEvent
	ready   []contracts.RawMIDIEvent
}

// New returns a queue with capacity events pre-allocated on each side.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		pending: make([]contracts.RawMIDIEvent, 0, capacity),
		ready:   make([]contracts.RawMIDIEvent, 0, capacity),
	}
}

// Append adds an event to the pending side. It blocks until the lock is free.
func (q *Queue) Append(event contracts.RawMIDIEvent) {
	q.mu.Lock()
	q.pending = append(q.pending, event)
	q.mu.Unlock()
}

// TryDrain attempts a non-blocking acquisition of the lock. On success every pending event
// is spliced into the ready side and passed to visit in arrival order; visit returning false
// drops the remaining events. The ready side is always empty afterwards.
//
// It returns false, without calling visit, when the lock is held by a producer.
func (q *Queue) TryDrain(visit func(event contracts.RawMIDIEvent) bool) bool {
	if !q.mu.TryLock() {
		return false
	}

	q.splice()

	for i := range q.ready {
		if !visit(q.ready[i]) {
			break
		}
	}

	q.ready = q.ready[:0]
	q.mu.Unlock()
	return true
}

// splice moves pending events behind the ready ones. Caller holds the lock.
func (q *Queue) splice() {
	if len(q.pending) == 0 {
		return
	}

	if len(q.ready) == 0 {
		q.ready, q.pending = q.pending, q.ready[:0]
		return
	}

	q.ready = append(q.ready, q.pending...)
	q.pending = q.pending[:0]
}

// Pending returns the number of events waiting for the next drain.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear drops every queued event.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.pending = q.pending[:0]
	q.ready = q.ready[:0]
	q.mu.Unlock()
}

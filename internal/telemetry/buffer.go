package telemetry

import (
	"sync"
	"time"
)

// secondsPerDay is the outage window the buffer is sized for.
const secondsPerDay = 24 * 60 * 60

// CapacityFor returns the number of batches needed to cover one day of
// polling at the given period: ceil(86400 / period_seconds).
//
// Periods shorter than one second are treated as one second.
func CapacityFor(period time.Duration) int {
	seconds := int(period / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return (secondsPerDay + seconds - 1) / seconds
}

// Buffer is a bounded FIFO of undelivered batches.
//
// Batches are pushed at the back and taken from the front. When a push would
// exceed capacity the oldest batch is evicted. A batch that fails delivery is
// returned to the front with Requeue so it is the next one attempted.
//
// Thread Safety: all methods are safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	items   []Batch // ring storage, len == capacity
	head    int     // index of the oldest batch
	size    int
	evicted uint64
}

// NewBuffer creates an empty buffer holding at most capacity batches.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{items: make([]Batch, capacity)}, nil
}

// Push appends b at the back of the buffer.
//
// If the buffer is full the oldest batch is dropped to make room; it is
// returned with evicted=true so the caller can log it.
func (q *Buffer) Push(b Batch) (dropped Batch, evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == len(q.items) {
		dropped = q.items[q.head]
		q.items[q.head] = Batch{}
		q.head = (q.head + 1) % len(q.items)
		q.size--
		q.evicted++
		evicted = true
	}

	tail := (q.head + q.size) % len(q.items)
	q.items[tail] = b
	q.size++

	return dropped, evicted
}

// Pop removes and returns the oldest batch.
func (q *Buffer) Pop() (Batch, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return Batch{}, ErrEmpty
	}

	b := q.items[q.head]
	q.items[q.head] = Batch{}
	q.head = (q.head + 1) % len(q.items)
	q.size--

	return b, nil
}

// Requeue puts b back at the front of the buffer, ahead of every batch that
// has not been attempted yet.
func (q *Buffer) Requeue(b Batch) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == len(q.items) {
		return ErrFull
	}

	q.head = (q.head - 1 + len(q.items)) % len(q.items)
	q.items[q.head] = b
	q.size++

	return nil
}

// Peek returns the oldest batch without removing it.
func (q *Buffer) Peek() (Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return Batch{}, false
	}
	return q.items[q.head], true
}

// Len returns the number of buffered batches.
func (q *Buffer) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the maximum number of buffered batches.
func (q *Buffer) Cap() int {
	return len(q.items)
}

// Evicted returns the total number of batches dropped on overflow.
func (q *Buffer) Evicted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// Snapshot returns a copy of the buffered batches, oldest first.
func (q *Buffer) Snapshot() []Batch {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Batch, 0, q.size)
	for i := 0; i < q.size; i++ {
		out = append(out, q.items[(q.head+i)%len(q.items)])
	}
	return out
}

package telemetry

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"
)

func batchAt(ts uint64) Batch {
	return Batch{
		Timestamp:    ts,
		Measurements: []Measurement{{Name: "temperature", Value: float32(ts)}},
	}
}

func timestamps(batches []Batch) []uint64 {
	out := make([]uint64, len(batches))
	for i, b := range batches {
		out[i] = b.Timestamp
	}
	return out
}

func equalTimestamps(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCapacityFor(t *testing.T) {
	tests := []struct {
		name   string
		period time.Duration
		want   int
	}{
		{name: "five minutes", period: 300 * time.Second, want: 288},
		{name: "one minute", period: time.Minute, want: 1440},
		{name: "uneven period rounds up", period: 7 * time.Second, want: 12343},
		{name: "one day", period: 24 * time.Hour, want: 1},
		{name: "longer than a day", period: 48 * time.Hour, want: 1},
		{name: "sub-second treated as one second", period: 10 * time.Millisecond, want: 86400},
		{name: "zero treated as one second", period: 0, want: 86400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CapacityFor(tt.period); got != tt.want {
				t.Errorf("CapacityFor(%v) = %d, want %d", tt.period, got, tt.want)
			}
		})
	}
}

func TestNewBuffer_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := NewBuffer(capacity); !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("NewBuffer(%d) error = %v, want ErrInvalidCapacity", capacity, err)
		}
	}
}

func TestBuffer_PushEvictsOldest(t *testing.T) {
	buf, err := NewBuffer(2)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	for _, ts := range []uint64{100, 200} {
		if _, evicted := buf.Push(batchAt(ts)); evicted {
			t.Fatalf("Push(%d) evicted unexpectedly", ts)
		}
	}

	dropped, evicted := buf.Push(batchAt(300))
	if !evicted {
		t.Fatal("Push(300) should evict when full")
	}
	if dropped.Timestamp != 100 {
		t.Errorf("dropped.Timestamp = %d, want 100", dropped.Timestamp)
	}

	got := timestamps(buf.Snapshot())
	if !equalTimestamps(got, []uint64{200, 300}) {
		t.Errorf("Snapshot() = %v, want [200 300]", got)
	}
	if buf.Evicted() != 1 {
		t.Errorf("Evicted() = %d, want 1", buf.Evicted())
	}
}

func TestBuffer_PopOrder(t *testing.T) {
	buf, _ := NewBuffer(4)
	for _, ts := range []uint64{1, 2, 3} {
		buf.Push(batchAt(ts))
	}

	for _, want := range []uint64{1, 2, 3} {
		b, err := buf.Pop()
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if b.Timestamp != want {
			t.Errorf("Pop().Timestamp = %d, want %d", b.Timestamp, want)
		}
	}

	if _, err := buf.Pop(); !errors.Is(err, ErrEmpty) {
		t.Errorf("Pop() on empty error = %v, want ErrEmpty", err)
	}
}

func TestBuffer_RequeueGoesToFront(t *testing.T) {
	buf, _ := NewBuffer(3)
	buf.Push(batchAt(200))
	buf.Push(batchAt(300))

	first, _ := buf.Pop()
	if first.Timestamp != 200 {
		t.Fatalf("Pop().Timestamp = %d, want 200", first.Timestamp)
	}

	second, _ := buf.Pop()
	if err := buf.Requeue(second); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}

	// A newer batch arrives before the next delivery attempt.
	buf.Push(batchAt(400))

	next, ok := buf.Peek()
	if !ok || next.Timestamp != 300 {
		t.Errorf("Peek() = %d, %v; want 300, true", next.Timestamp, ok)
	}
	got := timestamps(buf.Snapshot())
	if !equalTimestamps(got, []uint64{300, 400}) {
		t.Errorf("Snapshot() = %v, want [300 400]", got)
	}
}

func TestBuffer_RequeueWhenFull(t *testing.T) {
	buf, _ := NewBuffer(1)
	buf.Push(batchAt(1))

	if err := buf.Requeue(batchAt(0)); !errors.Is(err, ErrFull) {
		t.Errorf("Requeue() on full buffer error = %v, want ErrFull", err)
	}
	if buf.Len() != 1 {
		t.Errorf("Len() = %d, want 1", buf.Len())
	}
}

func TestBuffer_WrapAround(t *testing.T) {
	buf, _ := NewBuffer(3)
	for ts := uint64(1); ts <= 10; ts++ {
		buf.Push(batchAt(ts))
		if ts%2 == 0 {
			b, _ := buf.Pop()
			_ = buf.Requeue(b)
		}
	}

	got := timestamps(buf.Snapshot())
	if !equalTimestamps(got, []uint64{8, 9, 10}) {
		t.Errorf("Snapshot() = %v, want [8 9 10]", got)
	}
	if buf.Evicted() != 7 {
		t.Errorf("Evicted() = %d, want 7", buf.Evicted())
	}
}

// TestBuffer_RandomOperations checks ordering and the capacity bound against
// a slice model over random push/pop/requeue sequences.
func TestBuffer_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for round := 0; round < 50; round++ {
		capacity := 1 + rng.IntN(8)
		buf, _ := NewBuffer(capacity)
		var model []uint64
		var inFlight *Batch
		next := uint64(1)

		for step := 0; step < 200; step++ {
			switch op := rng.IntN(3); {
			case op == 0:
				buf.Push(batchAt(next))
				model = append(model, next)
				if len(model) > capacity {
					model = model[1:]
				}
				next++
			case op == 1 && inFlight == nil:
				b, err := buf.Pop()
				if len(model) == 0 {
					if !errors.Is(err, ErrEmpty) {
						t.Fatalf("Pop() on empty error = %v", err)
					}
					continue
				}
				if b.Timestamp != model[0] {
					t.Fatalf("round %d step %d: Pop() = %d, want %d", round, step, b.Timestamp, model[0])
				}
				model = model[1:]
				inFlight = &b
			case inFlight != nil:
				if err := buf.Requeue(*inFlight); err == nil {
					model = append([]uint64{inFlight.Timestamp}, model...)
				} else if len(model) != capacity {
					t.Fatalf("Requeue() error = %v with %d/%d items", err, len(model), capacity)
				}
				inFlight = nil
			}

			if buf.Len() > buf.Cap() {
				t.Fatalf("Len() = %d exceeds Cap() = %d", buf.Len(), buf.Cap())
			}
			if got := timestamps(buf.Snapshot()); !equalTimestamps(got, model) {
				t.Fatalf("round %d step %d: Snapshot() = %v, want %v", round, step, got, model)
			}
		}
	}
}

func TestNewBatch(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	b := NewBatch(ts, []Measurement{{Name: "co2", Value: 415}})

	if b.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %d, want 1700000000", b.Timestamp)
	}
	if !b.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", b.Time(), ts)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

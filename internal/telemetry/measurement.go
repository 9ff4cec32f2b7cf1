package telemetry

import (
	"fmt"
	"time"
)

// Measurement is one physical quantity read from one sensor at one instant.
type Measurement struct {
	// Name is the metric leaf name (e.g. "co2", "temperature", "lux").
	Name string

	// Value is the reading in the metric's unit.
	Value float32
}

// String implements fmt.Stringer.
func (m Measurement) String() string {
	return fmt.Sprintf("%s=%g", m.Name, m.Value)
}

// Batch is one timestamped group of measurements produced by one cycle.
type Batch struct {
	// Timestamp is the unix time in seconds when the batch was assembled.
	Timestamp uint64

	// Measurements holds the cycle's readings in sensor poll order.
	Measurements []Measurement
}

// NewBatch stamps measurements with t.
func NewBatch(t time.Time, measurements []Measurement) Batch {
	ts := t.Unix()
	if ts < 0 {
		ts = 0
	}
	return Batch{
		Timestamp:    uint64(ts), //nolint:gosec // clamped above
		Measurements: measurements,
	}
}

// Time returns the batch timestamp as a time.Time in UTC.
func (b Batch) Time() time.Time {
	return time.Unix(int64(b.Timestamp), 0).UTC() //nolint:gosec // unix seconds fit in int64
}

// Len returns the number of measurements in the batch.
func (b Batch) Len() int {
	return len(b.Measurements)
}

package telemetry

import "errors"

// Sentinel errors for buffer operations.
var (
	// ErrEmpty is returned when popping from an empty buffer.
	ErrEmpty = errors.New("telemetry: buffer is empty")

	// ErrFull is returned when a requeue would exceed buffer capacity.
	ErrFull = errors.New("telemetry: buffer is full")

	// ErrInvalidCapacity is returned when a buffer is created with capacity < 1.
	ErrInvalidCapacity = errors.New("telemetry: capacity must be at least 1")
)

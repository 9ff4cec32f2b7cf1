package graphite

import "errors"

// Sentinel errors for Graphite delivery.
var (
	// ErrInvalidConfig indicates the collector address is incomplete.
	ErrInvalidConfig = errors.New("graphite: invalid configuration")

	// ErrConnectionFailed indicates the collector could not be reached.
	ErrConnectionFailed = errors.New("graphite: connection failed")

	// ErrWriteFailed indicates a batch was not completely written.
	ErrWriteFailed = errors.New("graphite: write failed")
)

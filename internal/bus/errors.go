package bus

import "errors"

// Sentinel errors for bus operations.
var (
	// ErrTransaction wraps a failed bus transaction (NACK, bus busy, short read).
	ErrTransaction = errors.New("bus: transaction failed")

	// ErrClosed is returned when using a handle after Close.
	ErrClosed = errors.New("bus: handle closed")

	// ErrOpenFailed is returned when the host bus cannot be opened.
	ErrOpenFailed = errors.New("bus: open failed")
)

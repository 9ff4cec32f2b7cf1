package autorange

import "errors"

// Domain-specific errors for the auto-range search.
var (
	// ErrGainMaxed is returned when incrementing the highest gain.
	ErrGainMaxed = errors.New("autorange: gain maxed out")

	// ErrGainMinimal is returned when decrementing the lowest gain.
	ErrGainMinimal = errors.New("autorange: gain already minimal")

	// ErrSaturated is returned by Device.Lux when a channel overflowed.
	ErrSaturated = errors.New("autorange: channel saturated")

	// ErrIterationLimit is returned when the search did not settle within
	// MaxIterations attempts.
	ErrIterationLimit = errors.New("autorange: iteration limit reached")
)

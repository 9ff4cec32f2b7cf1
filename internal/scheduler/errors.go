package scheduler

import "errors"

var (
	// ErrInvalidPeriod is returned when the period is not positive.
	ErrInvalidPeriod = errors.New("scheduler: period must be positive")

	// ErrInvalidJitter is returned when the jitter fraction is outside [0, 1).
	ErrInvalidJitter = errors.New("scheduler: jitter must be in [0, 1)")
)

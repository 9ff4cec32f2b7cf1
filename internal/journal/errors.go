package journal

import "errors"

var (
	// ErrInvalidConfig is returned when a Journal is created without a
	// repository or site.
	ErrInvalidConfig = errors.New("journal: invalid configuration")

	// ErrInvalidRetention is returned by Prune for a non-positive window.
	ErrInvalidRetention = errors.New("journal: retention must be positive")
)

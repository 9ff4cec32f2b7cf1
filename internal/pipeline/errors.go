package pipeline

import "errors"

var (
	// ErrInvalidConfig is returned by New when a required collaborator is
	// missing.
	ErrInvalidConfig = errors.New("pipeline: invalid configuration")
)

package link

import "errors"

var (
	// ErrInvalidConfig is returned when a command link has no up command.
	ErrInvalidConfig = errors.New("link: invalid configuration")

	// ErrCommandFailed is returned when a link command exits non-zero or
	// cannot be started.
	ErrCommandFailed = errors.New("link: command failed")
)

package sensor

import "errors"

// Domain errors for the sensor package.
var (
	// ErrInitFailed is returned when a configured sensor cannot be brought up.
	ErrInitFailed = errors.New("sensor: initialisation failed")

	// ErrUnknownKind is returned when no factory is registered for a kind.
	ErrUnknownKind = errors.New("sensor: unknown kind")

	// ErrDuplicateName is returned when two configured sensors share a name.
	ErrDuplicateName = errors.New("sensor: duplicate name")

	// ErrIdentity is returned by drivers when the chip identity check fails.
	ErrIdentity = errors.New("sensor: unexpected chip identity")

	// ErrChecksum is returned by drivers when a data word fails its CRC.
	ErrChecksum = errors.New("sensor: checksum mismatch")
)

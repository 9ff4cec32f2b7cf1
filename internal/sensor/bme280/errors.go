package bme280

import "errors"

var (
	// ErrMeasurementTimeout is returned when the chip is still converting
	// after the status poll gave up.
	ErrMeasurementTimeout = errors.New("bme280: measurement did not complete")
)

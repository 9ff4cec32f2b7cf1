package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, influxdb.ErrWriteFailed) {
//	    // Requeue the batch
//	}
var (
	// ErrInvalidConfig indicates the connection settings are incomplete.
	ErrInvalidConfig = errors.New("influxdb: invalid configuration")

	// ErrConnectionFailed indicates the server could not be reached.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed indicates a batch was not acknowledged by the server.
	ErrWriteFailed = errors.New("influxdb: write failed")
)

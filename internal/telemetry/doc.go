// Package telemetry defines the measurement data model and the bounded
// retry buffer that holds undelivered batches across link outages.
//
// # Data Flow
//
//	Sensor.Measure → Measurement → Batch → Buffer → Sender → collector
//
// A Batch is created once per polling cycle and is owned by the Buffer until
// it has been delivered. A failed delivery puts the batch back at the front
// of the Buffer so that ordering is never violated.
//
// # Capacity
//
// The Buffer is sized to survive one full day without delivery at the
// nominal polling cadence (see CapacityFor). Once full, every Push evicts the
// oldest batch. Evictions are counted, never returned as errors.
//
// # Thread Safety
//
// Buffer methods are safe for concurrent use. Measurement and Batch are
// plain values and should be treated as immutable once created.
package telemetry

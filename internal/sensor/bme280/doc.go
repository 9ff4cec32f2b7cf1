// Package bme280 drives the Bosch BME280 temperature, pressure and humidity
// sensor in forced mode.
//
// Raw readings are compensated with the double-precision formulas from the
// Bosch datasheet (section 8.1). Pressure is reported as pascals scaled by
// PressureFactor. A channel whose oversampling is set to Skip returns the
// chip's "skipped" sentinel and is omitted from the measurements with a
// warning.
package bme280

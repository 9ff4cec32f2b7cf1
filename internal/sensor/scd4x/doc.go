// Package scd4x drives the Sensirion SCD40/SCD41 CO2 sensor in single-shot
// mode.
//
// The sensor is kept powered down between cycles. Each Measure wakes it,
// discards the first single-shot result (the first reading after wake-up is
// not reliable) and reports co2 (ppm), humidity (%RH) and temperature (°C)
// from the second.
package scd4x

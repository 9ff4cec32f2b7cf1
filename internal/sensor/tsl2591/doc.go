// Package tsl2591 drives the ams TSL2591 light-to-digital converter.
//
// The chip has a very wide dynamic range but only if its gain suits the
// scene, so every Measure runs an autorange search starting from medium
// gain with a 100 ms integration time.
package tsl2591

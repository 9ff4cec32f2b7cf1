// Package pipeline runs one acquisition-and-delivery cycle.
//
// A cycle polls every sensor in configuration order, stamps whatever was
// produced as a single batch and pushes it onto the retry buffer. It then
// brings the network link up and drains the buffer oldest first. The first
// batch that fails to send goes back to the front of the buffer and draining
// stops until the next cycle, so delivery order always matches acquisition
// order.
//
// Delivery is at-least-once: a batch that failed part way through is resent
// whole, and the collector may see some lines twice.
//
// # Observers
//
// Observers receive the cycle Report after draining and before the link is
// released, so they may publish over the same link.
package pipeline

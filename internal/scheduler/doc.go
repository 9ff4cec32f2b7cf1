// Package scheduler re-arms the delivery cycle on a jittered period.
//
// The delay after every cycle is period ± a uniform random fraction of the
// period, so many devices started together drift apart and do not hit the
// collector in lockstep. Failures never change the cadence: there is no
// exponential backoff, and the fixed period is the retry interval.
package scheduler

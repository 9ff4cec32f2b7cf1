// Package autorange adapts the gain of a two-channel optical sensor until its
// reading falls inside the usable dynamic range.
//
// The search walks an ordered gain lattice (Low, Medium, High, Max) starting
// from Medium with a fixed integration time:
//
//   - an underflow (NaN illuminance) raises the gain; at Max the scene is
//     reported as dark (lux = 0);
//   - an overflow (saturated channel) lowers the gain; at Low the reading is
//     dropped;
//   - an infinite illuminance is unmeasurable and dropped;
//   - any finite value is reported as is.
//
// Total iterations are capped at MaxIterations so a misbehaving device can
// never keep the delivery cycle busy.
//
// # Usage
//
//	ctrl := autorange.New(dev, autorange.Options{Clock: clk, Logger: log})
//	reading, err := ctrl.Search(ctx)
//	if err != nil {
//	    log.Warn("lux search failed", "error", err)
//	}
//	measurements := reading.Measurements()
package autorange

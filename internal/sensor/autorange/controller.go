package autorange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/sensorlink/internal/telemetry"
)

// MaxIterations caps the number of measure attempts in one search.
//
// The lattice allows at most three moves in either direction, so a well
// behaved device settles in four attempts. The cap only matters when a device
// oscillates between underflow and overflow.
const MaxIterations = 10

// Defaults for the data-valid poll.
const (
	DefaultPollAttempts = 10
	DefaultPollInterval = 100 * time.Millisecond
)

// MeasurementName is the name of the emitted illuminance measurement.
const MeasurementName = "lux"

// Device is the control surface of a two-channel optical sensor.
type Device interface {
	// Configure sets gain and integration time. The device may be disabled.
	Configure(g Gain, t Integration) error

	// Enable powers the ADCs and starts integrating.
	Enable() error

	// Disable powers the ADCs down.
	Disable() error

	// Valid reports whether a complete integration cycle is available.
	Valid() (bool, error)

	// Channels reads the raw full-spectrum (ch0) and infrared (ch1) counts.
	Channels() (ch0, ch1 uint16, err error)

	// Lux converts raw counts to illuminance for the given settings.
	// It returns ErrSaturated when either channel overflowed. NaN means
	// underflow and an infinite value means the reading is unusable.
	Lux(ch0, ch1 uint16, g Gain, t Integration) (float64, error)
}

// Logger is the logging interface used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Controller. Zero values select the defaults.
type Options struct {
	Clock        clock.Clock
	Logger       Logger
	Start        *Gain
	Integration  Integration
	PollAttempts int
	PollInterval time.Duration
}

// Outcome classifies how a search ended.
type Outcome int

const (
	// Failed means the device errored or the iteration cap was hit.
	Failed Outcome = iota
	// Measured means a finite illuminance was read.
	Measured
	// Dark means the sensor underflowed even at Max gain.
	Dark
	// Saturated means the sensor overflowed even at Low gain.
	Saturated
	// Unmeasurable means the conversion produced an infinite value.
	Unmeasurable
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case Measured:
		return "measured"
	case Dark:
		return "dark"
	case Saturated:
		return "saturated"
	case Unmeasurable:
		return "unmeasurable"
	default:
		return "failed"
	}
}

// Reading is the result of one search.
type Reading struct {
	Lux         float64
	Gain        Gain // gain of the final attempt
	Outcome     Outcome
	Adjustments int // gain changes made before settling
	Attempts    int
}

// Measurements maps the reading to what the sensor emits: one lux value for
// Measured and Dark, nothing otherwise.
func (r Reading) Measurements() []telemetry.Measurement {
	switch r.Outcome {
	case Measured:
		return []telemetry.Measurement{{Name: MeasurementName, Value: float32(r.Lux)}}
	case Dark:
		return []telemetry.Measurement{{Name: MeasurementName, Value: 0}}
	default:
		return nil
	}
}

// Controller runs the bounded gain search against one Device.
type Controller struct {
	dev          Device
	clock        clock.Clock
	logger       Logger
	start        Gain
	integration  Integration
	pollAttempts int
	pollInterval time.Duration
}

// New creates a Controller for dev.
func New(dev Device, opts Options) *Controller {
	c := &Controller{
		dev:          dev,
		clock:        opts.Clock,
		logger:       opts.Logger,
		start:        DefaultGain,
		integration:  opts.Integration,
		pollAttempts: opts.PollAttempts,
		pollInterval: opts.PollInterval,
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if opts.Start != nil {
		c.start = *opts.Start
	}
	if c.pollAttempts <= 0 {
		c.pollAttempts = DefaultPollAttempts
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	return c
}

// Search measures until the reading is usable or the lattice is exhausted.
//
// The returned error is informational: the Reading is always valid and its
// Measurements are safe to emit.
func (c *Controller) Search(ctx context.Context) (Reading, error) {
	g := c.start
	r := Reading{Gain: g, Outcome: Failed}

	for r.Attempts < MaxIterations {
		if err := ctx.Err(); err != nil {
			return r, err
		}

		r.Attempts++
		r.Gain = g

		lux, err := c.measure(ctx, g)
		switch {
		case errors.Is(err, ErrSaturated):
			next, derr := g.Decrement()
			if derr != nil {
				r.Outcome = Saturated
				return r, nil
			}
			c.logger.Debug("channel saturated, lowering gain", "from", g, "to", next)
			g = next
			r.Adjustments++

		case err != nil:
			r.Outcome = Failed
			return r, err

		case math.IsNaN(lux):
			next, ierr := g.Increment()
			if ierr != nil {
				r.Outcome = Dark
				r.Lux = 0
				return r, nil
			}
			c.logger.Debug("underflow, raising gain", "from", g, "to", next)
			g = next
			r.Adjustments++

		case math.IsInf(lux, 0):
			r.Outcome = Unmeasurable
			return r, nil

		default:
			r.Outcome = Measured
			r.Lux = lux
			return r, nil
		}
	}

	r.Outcome = Failed
	return r, fmt.Errorf("%w: %d attempts, last gain %s", ErrIterationLimit, r.Attempts, r.Gain)
}

// measure performs one configure/enable/poll/read/disable round at gain g.
func (c *Controller) measure(ctx context.Context, g Gain) (float64, error) {
	if err := c.dev.Configure(g, c.integration); err != nil {
		return 0, fmt.Errorf("configure: %w", err)
	}
	if err := c.dev.Enable(); err != nil {
		return 0, fmt.Errorf("enable: %w", err)
	}

	valid := false
	for i := 0; i < c.pollAttempts; i++ {
		ok, err := c.dev.Valid()
		if err != nil {
			_ = c.dev.Disable()
			return 0, fmt.Errorf("status: %w", err)
		}
		if ok {
			valid = true
			break
		}
		if ctx.Err() != nil {
			_ = c.dev.Disable()
			return 0, ctx.Err()
		}
		c.clock.Sleep(c.pollInterval)
	}
	if !valid {
		// Soft timeout: read whatever the ADCs hold.
		c.logger.Warn("data never became valid", "gain", g, "attempts", c.pollAttempts)
	}

	ch0, ch1, err := c.dev.Channels()
	if derr := c.dev.Disable(); derr != nil && err == nil {
		err = derr
	}
	if err != nil {
		return 0, fmt.Errorf("channels: %w", err)
	}

	return c.dev.Lux(ch0, ch1, g, c.integration)
}

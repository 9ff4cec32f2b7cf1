package bme280

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/sensorlink/internal/bus"
	"github.com/nerrad567/sensorlink/internal/sensor"
	"github.com/nerrad567/sensorlink/internal/telemetry"
)

// Kind is the registry name of this driver.
const Kind = "bme280"

// DefaultAddress is the address with SDO tied low. 0x77 is the alternative.
const DefaultAddress = 0x76

// PressureFactor scales compensated pressure (Pa) to the reported unit.
const PressureFactor = 0.0075

const chipID = 0x60

// Registers.
const (
	regCalibTP   = 0x88
	regChipID    = 0xD0
	regReset     = 0xE0
	regCalibHum  = 0xE1
	regCtrlHum   = 0xF2
	regStatus    = 0xF3
	regCtrlMeas  = 0xF4
	regConfig    = 0xF5
	regDataStart = 0xF7
)

const (
	resetCommand = 0xB6

	statusMeasuring = 1 << 3
	statusImUpdate  = 1 << 0

	modeSleep  = 0x00
	modeForced = 0x01
)

const (
	startupDelay = 2 * time.Millisecond
	settleDelay  = 100 * time.Millisecond
	statusPolls  = 10
	statusPeriod = time.Millisecond
)

// Oversampling is the per-channel oversampling setting.
type Oversampling byte

// Oversampling settings. Skip disables the channel.
const (
	Skip Oversampling = iota
	X1
	X2
	X4
	X8
	X16
)

// samples returns the number of samples taken, 0 for Skip.
func (o Oversampling) samples() int {
	if o == Skip {
		return 0
	}
	return 1 << (o - 1)
}

// Options selects oversampling per channel.
type Options struct {
	Temperature Oversampling
	Pressure    Oversampling
	Humidity    Oversampling
}

// DefaultOptions oversamples every channel x4.
func DefaultOptions() Options {
	return Options{Temperature: X4, Pressure: X4, Humidity: X4}
}

// ctrlMeas returns the ctrl_meas register value for mode.
func (o Options) ctrlMeas(mode byte) byte {
	return byte(o.Temperature)<<5 | byte(o.Pressure)<<2 | mode
}

// measureTime is the datasheet maximum conversion time (appendix B).
func (o Options) measureTime() time.Duration {
	us := 1250 + 2300*o.Temperature.samples()
	if o.Pressure != Skip {
		us += 2300*o.Pressure.samples() + 575
	}
	if o.Humidity != Skip {
		us += 2300*o.Humidity.samples() + 575
	}
	return time.Duration(us) * time.Microsecond
}

// Driver is an initialised BME280.
type Driver struct {
	dev    *bus.Device
	name   string
	opts   Options
	calib  calibration
	clock  clock.Clock
	logger sensor.Logger
}

// Factory opens a BME280 with default options for the sensor registry.
func Factory(ctx context.Context, env sensor.Env, def sensor.Definition) (sensor.Sensor, error) {
	addr := def.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	return Open(ctx, env.Bus.Device(def.Name, addr), env, DefaultOptions())
}

// Open verifies the chip id, resets the chip, loads its calibration and
// configures forced mode.
func Open(ctx context.Context, dev *bus.Device, env sensor.Env, opts Options) (*Driver, error) {
	env = env.WithDefaults()
	d := &Driver{
		dev:    dev,
		name:   dev.Name(),
		opts:   opts,
		clock:  env.Clock,
		logger: env.Logger,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := dev.Exclusive(func(c bus.Conn) error {
		id, err := bus.ReadReg(c, regChipID, 1)
		if err != nil {
			return fmt.Errorf("reading chip id: %w", err)
		}
		if id[0] != chipID {
			return fmt.Errorf("%w: 0x%02x, want 0x%02x", sensor.ErrIdentity, id[0], chipID)
		}

		if err := bus.WriteReg(c, regReset, resetCommand); err != nil {
			return fmt.Errorf("soft reset: %w", err)
		}
		d.clock.Sleep(startupDelay)
		if err := d.waitStatusClear(c, statusImUpdate); err != nil {
			return fmt.Errorf("loading calibration: %w", err)
		}

		tp, err := bus.ReadReg(c, regCalibTP, 26)
		if err != nil {
			return fmt.Errorf("reading calibration: %w", err)
		}
		hum, err := bus.ReadReg(c, regCalibHum, 7)
		if err != nil {
			return fmt.Errorf("reading calibration: %w", err)
		}
		if d.calib, err = parseCalibration(tp, hum); err != nil {
			return err
		}

		// ctrl_hum only takes effect after the following ctrl_meas write.
		if err := bus.WriteReg(c, regCtrlHum, byte(opts.Humidity)); err != nil {
			return fmt.Errorf("configuring humidity: %w", err)
		}
		if err := bus.WriteReg(c, regConfig, 0x00); err != nil {
			return fmt.Errorf("configuring filter: %w", err)
		}
		if err := bus.WriteReg(c, regCtrlMeas, opts.ctrlMeas(modeSleep)); err != nil {
			return fmt.Errorf("configuring measurement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.clock.Sleep(settleDelay)
	d.logger.Info("bme280 ready", "sensor", d.name, "address", fmt.Sprintf("0x%02x", dev.Addr()))
	return d, nil
}

// Name implements sensor.Sensor.
func (d *Driver) Name() string {
	return d.name
}

// Measure implements sensor.Sensor.
func (d *Driver) Measure(ctx context.Context) []telemetry.Measurement {
	if err := ctx.Err(); err != nil {
		return nil
	}

	sample, err := d.Sample()
	if err != nil {
		d.logger.Error("climate measurement failed", "sensor", d.name, "error", err)
		return nil
	}
	return measurementsFromSample(sample, d.logger, d.name)
}

// Sample triggers one forced conversion and returns the compensated values.
func (d *Driver) Sample() (Sample, error) {
	var raw rawSample
	err := d.dev.Exclusive(func(c bus.Conn) error {
		if err := bus.WriteReg(c, regCtrlMeas, d.opts.ctrlMeas(modeForced)); err != nil {
			return fmt.Errorf("triggering measurement: %w", err)
		}
		d.clock.Sleep(d.opts.measureTime())

		if err := d.waitStatusClear(c, statusMeasuring); err != nil {
			return err
		}

		burst, err := bus.ReadReg(c, regDataStart, 8)
		if err != nil {
			return fmt.Errorf("reading data: %w", err)
		}
		raw = parseBurst(burst)
		return nil
	})
	if err != nil {
		return Sample{}, err
	}
	return d.calib.compensate(raw), nil
}

// waitStatusClear polls the status register until mask is clear.
func (d *Driver) waitStatusClear(c bus.Conn, mask byte) error {
	for i := 0; i < statusPolls; i++ {
		status, err := bus.ReadReg(c, regStatus, 1)
		if err != nil {
			return fmt.Errorf("reading status: %w", err)
		}
		if status[0]&mask == 0 {
			return nil
		}
		d.clock.Sleep(statusPeriod)
	}
	return ErrMeasurementTimeout
}

// measurementsFromSample emits temperature, humidity and pressure, skipping
// disabled channels with a warning.
func measurementsFromSample(s Sample, logger sensor.Logger, name string) []telemetry.Measurement {
	out := make([]telemetry.Measurement, 0, 3)

	if s.Temperature != nil {
		out = append(out, telemetry.Measurement{Name: "temperature", Value: float32(*s.Temperature)})
	} else {
		logger.Warn("temperature channel disabled", "sensor", name)
	}

	if s.Humidity != nil {
		out = append(out, telemetry.Measurement{Name: "humidity", Value: float32(*s.Humidity)})
	} else {
		logger.Warn("humidity channel disabled", "sensor", name)
	}

	if s.Pressure != nil {
		out = append(out, telemetry.Measurement{Name: "pressure", Value: float32(*s.Pressure * PressureFactor)})
	} else {
		logger.Warn("pressure channel disabled", "sensor", name)
	}

	return out
}

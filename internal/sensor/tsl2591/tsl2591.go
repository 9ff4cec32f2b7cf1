package tsl2591

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/sensorlink/internal/bus"
	"github.com/nerrad567/sensorlink/internal/sensor"
	"github.com/nerrad567/sensorlink/internal/sensor/autorange"
	"github.com/nerrad567/sensorlink/internal/telemetry"
)

// Kind is the registry name of this driver.
const Kind = "tsl2591"

// DefaultAddress is the fixed I2C address of the TSL2591.
const DefaultAddress = 0x29

const chipID = 0x50

// Every register access sets the command bit with normal transaction type.
const commandBit = 0xA0

// Registers.
const (
	regEnable  = 0x00
	regControl = 0x01
	regID      = 0x12
	regStatus  = 0x13
	regC0DataL = 0x14
)

const (
	enablePowerOn = 0x01
	enableALS     = 0x02

	statusValid = 0x01
)

// luxDF is the device factor from the ams application note.
const luxDF = 408.0

// Saturation thresholds. At 100 ms the ADC counts up to 36863 only.
const (
	maxCount100ms = 36863
	maxCount      = 65535
)

// powerOnSettle is how long Open keeps the ADCs running before reading
// status.
const powerOnSettle = time.Second

// gainBits maps the lattice to CONTROL.AGAIN.
var gainBits = map[autorange.Gain]byte{
	autorange.Low:    0x00,
	autorange.Medium: 0x10,
	autorange.High:   0x20,
	autorange.Max:    0x30,
}

// gainMultiplier is the typical analog gain for each step.
var gainMultiplier = map[autorange.Gain]float64{
	autorange.Low:    1,
	autorange.Medium: 25,
	autorange.High:   428,
	autorange.Max:    9876,
}

// chip implements autorange.Device over a bus connection.
type chip struct {
	c bus.Conn
}

func (ch chip) write(reg, value byte) error {
	return bus.WriteReg(ch.c, commandBit|reg, value)
}

func (ch chip) read(reg byte, n int) ([]byte, error) {
	return bus.ReadReg(ch.c, commandBit|reg, n)
}

func (ch chip) Configure(g autorange.Gain, t autorange.Integration) error {
	bits, ok := gainBits[g]
	if !ok {
		return fmt.Errorf("unsupported gain %s", g)
	}
	return ch.write(regControl, bits|byte(t)&0x07)
}

func (ch chip) Enable() error {
	return ch.write(regEnable, enablePowerOn|enableALS)
}

func (ch chip) Disable() error {
	return ch.write(regEnable, 0x00)
}

func (ch chip) Valid() (bool, error) {
	status, err := ch.read(regStatus, 1)
	if err != nil {
		return false, err
	}
	return status[0]&statusValid != 0, nil
}

func (ch chip) Channels() (uint16, uint16, error) {
	b, err := ch.read(regC0DataL, 4)
	if err != nil {
		return 0, 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, uint16(b[2]) | uint16(b[3])<<8, nil
}

func (ch chip) Lux(ch0, ch1 uint16, g autorange.Gain, t autorange.Integration) (float64, error) {
	return lux(ch0, ch1, g, t)
}

// lux converts raw counts to illuminance. Both channels at zero give NaN
// (underflow); ch0 at zero with infrared present gives +Inf.
func lux(ch0, ch1 uint16, g autorange.Gain, t autorange.Integration) (float64, error) {
	limit := uint16(maxCount)
	if t == autorange.Integration100ms {
		limit = maxCount100ms
	}
	if ch0 >= limit || ch1 >= limit {
		return 0, fmt.Errorf("%w: ch0=%d ch1=%d at gain %s", autorange.ErrSaturated, ch0, ch1, g)
	}

	atime := float64(t.Duration() / time.Millisecond)
	cpl := atime * gainMultiplier[g] / luxDF

	c0, c1 := float64(ch0), float64(ch1)
	return (c0 - c1) * (1 - c1/c0) / cpl, nil
}

// Driver is an initialised TSL2591.
type Driver struct {
	dev    *bus.Device
	name   string
	clock  clock.Clock
	logger sensor.Logger
}

// Factory opens a TSL2591 for the sensor registry.
func Factory(ctx context.Context, env sensor.Env, def sensor.Definition) (sensor.Sensor, error) {
	addr := def.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	return Open(ctx, env.Bus.Device(def.Name, addr), env)
}

// Open checks the chip id, powers the ADCs for a second, logs the status
// register and powers down again.
func Open(ctx context.Context, dev *bus.Device, env sensor.Env) (*Driver, error) {
	env = env.WithDefaults()
	d := &Driver{
		dev:    dev,
		name:   dev.Name(),
		clock:  env.Clock,
		logger: env.Logger,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := dev.Exclusive(func(c bus.Conn) error {
		ch := chip{c}

		id, err := ch.read(regID, 1)
		if err != nil {
			return fmt.Errorf("reading chip id: %w", err)
		}
		if id[0] != chipID {
			return fmt.Errorf("%w: 0x%02x, want 0x%02x", sensor.ErrIdentity, id[0], chipID)
		}

		if err := ch.Enable(); err != nil {
			return fmt.Errorf("power on: %w", err)
		}
		d.clock.Sleep(powerOnSettle)

		status, err := ch.read(regStatus, 1)
		if err != nil {
			return fmt.Errorf("reading status: %w", err)
		}
		d.logger.Info("tsl2591 ready", "sensor", d.name, "status", fmt.Sprintf("0x%02x", status[0]))

		if err := ch.Disable(); err != nil {
			return fmt.Errorf("power off: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Name implements sensor.Sensor.
func (d *Driver) Name() string {
	return d.name
}

// Measure implements sensor.Sensor. The bus is held for the whole search.
func (d *Driver) Measure(ctx context.Context) []telemetry.Measurement {
	var reading autorange.Reading
	err := d.dev.Exclusive(func(c bus.Conn) error {
		ctrl := autorange.New(chip{c}, autorange.Options{
			Clock:       d.clock,
			Logger:      d.logger,
			Integration: autorange.DefaultIntegration,
		})
		var err error
		reading, err = ctrl.Search(ctx)
		return err
	})
	if err != nil {
		d.logger.Error("lux measurement failed", "sensor", d.name, "error", err)
		return nil
	}

	switch reading.Outcome {
	case autorange.Saturated:
		d.logger.Warn("light sensor saturated at lowest gain", "sensor", d.name)
	case autorange.Unmeasurable:
		d.logger.Warn("light reading unmeasurable", "sensor", d.name)
	default:
		d.logger.Debug("lux measured",
			"sensor", d.name,
			"lux", reading.Lux,
			"gain", reading.Gain,
			"outcome", reading.Outcome,
			"adjustments", reading.Adjustments,
		)
	}
	return reading.Measurements()
}

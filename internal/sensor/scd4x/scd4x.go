package scd4x

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
const Kind = "scd4x"

// DefaultAddress is the fixed I2C address of the SCD4x family.
const DefaultAddress = 0x62

// command is a 16-bit SCD4x command with its execution time.
type command struct {
	code  uint16
	delay time.Duration
}

var (
	cmdStopPeriodic      = command{0x3F86, 500 * time.Millisecond}
	cmdReinit            = command{0x3646, 20 * time.Millisecond}
	cmdSerialNumber      = command{0x3682, time.Millisecond}
	cmdWakeUp            = command{0x36F6, 20 * time.Millisecond}
	cmdMeasureSingleShot = command{0x219D, 5000 * time.Millisecond}
	cmdReadMeasurement   = command{0xEC05, time.Millisecond}
	cmdPowerDown         = command{0x36E0, time.Millisecond}
)

// wakeSettle is the pause after the double wake-up. The chip does not ACK
// wake-up, so completion cannot be observed.
const wakeSettle = 200 * time.Millisecond

// Reading is one decoded measurement.
type Reading struct {
	CO2         uint16  // ppm
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// Measurements returns co2, humidity and temperature in that order.
func (r Reading) Measurements() []telemetry.Measurement {
	return []telemetry.Measurement{
		{Name: "co2", Value: float32(r.CO2)},
		{Name: "humidity", Value: float32(r.Humidity)},
		{Name: "temperature", Value: float32(r.Temperature)},
	}
}

// Driver is an initialised SCD4x.
type Driver struct {
	dev    *bus.Device
	name   string
	clock  clock.Clock
	logger sensor.Logger
	serial uint64
}

// Factory opens an SCD4x for the sensor registry.
func Factory(ctx context.Context, env sensor.Env, def sensor.Definition) (sensor.Sensor, error) {
	addr := def.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	return Open(ctx, env.Bus.Device(def.Name, addr), env)
}

// Open stops any periodic measurement left running, reinitialises the chip
// and reads its serial number.
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
		// Fails harmlessly when no periodic measurement is running.
		if err := d.send(c, cmdStopPeriodic); err != nil {
			d.logger.Debug("stop periodic measurement not acknowledged", "sensor", d.name, "error", err)
		}
		if err := d.send(c, cmdReinit); err != nil {
			return fmt.Errorf("reinit: %w", err)
		}

		words, err := d.read(c, cmdSerialNumber, 3)
		if err != nil {
			return fmt.Errorf("serial number: %w", err)
		}
		d.serial = uint64(words[0])<<32 | uint64(words[1])<<16 | uint64(words[2])
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("scd4x ready", "sensor", d.name, "serial", fmt.Sprintf("%#012x", d.serial))
	return d, nil
}

// Name implements sensor.Sensor.
func (d *Driver) Name() string {
	return d.name
}

// Serial returns the 48-bit chip serial number read at Open.
func (d *Driver) Serial() uint64 {
	return d.serial
}

// Measure implements sensor.Sensor. The bus is held for the whole wake,
// measure and power-down sequence, which takes a little over ten seconds.
func (d *Driver) Measure(ctx context.Context) []telemetry.Measurement {
	var reading Reading
	err := d.dev.Exclusive(func(c bus.Conn) error {
		var err error
		reading, err = d.measure(ctx, c)

		if perr := d.send(c, cmdPowerDown); perr != nil {
			d.logger.Warn("power down failed", "sensor", d.name, "error", perr)
		}
		return err
	})
	if err != nil {
		d.logger.Error("co2 measurement failed", "sensor", d.name, "error", err)
		return nil
	}

	d.logger.Debug("co2 measured",
		"sensor", d.name,
		"co2", reading.CO2,
		"humidity", reading.Humidity,
		"temperature", reading.Temperature,
	)
	return reading.Measurements()
}

func (d *Driver) measure(ctx context.Context, c bus.Conn) (Reading, error) {
	// A single wake-up is not always enough; neither is acknowledged.
	_ = d.send(c, cmdWakeUp)
	_ = d.send(c, cmdWakeUp)
	d.clock.Sleep(wakeSettle)

	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	// The first reading after wake-up is discarded.
	if err := d.send(c, cmdMeasureSingleShot); err != nil {
		d.logger.Debug("discarded single shot failed", "sensor", d.name, "error", err)
	}
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	if err := d.send(c, cmdMeasureSingleShot); err != nil {
		return Reading{}, fmt.Errorf("single shot: %w", err)
	}

	words, err := d.read(c, cmdReadMeasurement, 3)
	if err != nil {
		return Reading{}, fmt.Errorf("read measurement: %w", err)
	}
	return decodeMeasurement(words), nil
}

// send writes a command and waits for its execution time.
func (d *Driver) send(c bus.Conn, cmd command) error {
	err := bus.Write(c, byte(cmd.code>>8), byte(cmd.code))
	d.clock.Sleep(cmd.delay)
	return err
}

// read sends cmd, waits, then reads n CRC-protected words.
func (d *Driver) read(c bus.Conn, cmd command, n int) ([]uint16, error) {
	if err := d.send(c, cmd); err != nil {
		return nil, err
	}
	raw, err := bus.Read(c, n*3)
	if err != nil {
		return nil, err
	}
	return decodeWords(raw)
}

// decodeWords splits msb/lsb/crc triplets and verifies each checksum.
func decodeWords(raw []byte) ([]uint16, error) {
	if len(raw)%3 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of words", sensor.ErrChecksum, len(raw))
	}
	words := make([]uint16, 0, len(raw)/3)
	for i := 0; i < len(raw); i += 3 {
		if got, want := raw[i+2], crc8(raw[i:i+2]); got != want {
			return nil, fmt.Errorf("%w: word %d crc 0x%02x, want 0x%02x", sensor.ErrChecksum, i/3, got, want)
		}
		words = append(words, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	return words, nil
}

// decodeMeasurement converts co2, temperature, humidity words.
func decodeMeasurement(words []uint16) Reading {
	return Reading{
		CO2:         words[0],
		Temperature: -45 + 175*float64(words[1])/65535,
		Humidity:    100 * float64(words[2]) / 65535,
	}
}

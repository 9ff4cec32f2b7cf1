package scd4x

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/physic"

	"github.com/nerrad567/sensorlink/internal/bus"
	"github.com/nerrad567/sensorlink/internal/sensor"
)

var errNack = errors.New("nack")

// stepClock advances the mock clock instead of blocking in Sleep.
type stepClock struct {
	*clock.Mock
}

func (c stepClock) Sleep(d time.Duration) { c.Add(d) }

// fakeChip emulates the SCD4x command interface: a 2-byte write selects a
// command, a following read returns that command's response.
type fakeChip struct {
	mu        sync.Mutex
	commands  []uint16
	responses map[uint16][]byte
	nacks     map[uint16]int
	last      uint16
}

func newFakeChip() *fakeChip {
	return &fakeChip{
		responses: map[uint16][]byte{
			cmdSerialNumber.code:    words(0x1234, 0x5678, 0x9ABC),
			cmdReadMeasurement.code: words(0x01F4, 0x6667, 0x5EB9),
		},
		nacks: map[uint16]int{},
	}
}

func (f *fakeChip) String() string                  { return "fake-scd4x" }
func (f *fakeChip) SetSpeed(physic.Frequency) error { return nil }

func (f *fakeChip) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if addr != DefaultAddress {
		return errNack
	}
	if len(w) == 2 {
		cmd := uint16(w[0])<<8 | uint16(w[1])
		f.commands = append(f.commands, cmd)
		if f.nacks[cmd] > 0 {
			f.nacks[cmd]--
			return errNack
		}
		f.last = cmd
	}
	if len(r) > 0 {
		copy(r, f.responses[f.last])
	}
	return nil
}

func (f *fakeChip) sent() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint16(nil), f.commands...)
}

// words encodes 16-bit words with their CRC bytes.
func words(ws ...uint16) []byte {
	var out []byte
	for _, w := range ws {
		b := []byte{byte(w >> 8), byte(w)}
		out = append(out, b[0], b[1], crc8(b))
	}
	return out
}

func openDriver(t *testing.T, chip *fakeChip) (*Driver, stepClock) {
	t.Helper()
	clk := stepClock{clock.NewMock()}
	h := bus.New(chip)
	d, err := Open(context.Background(), h.Device("co2", DefaultAddress), sensor.Env{Bus: h, Clock: clk})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return d, clk
}

func TestCRC8(t *testing.T) {
	tests := []struct {
		data []byte
		want byte
	}{
		{data: []byte{0xBE, 0xEF}, want: 0x92},
		{data: []byte{0x01, 0xF4}, want: 0x33},
		{data: []byte{0x66, 0x67}, want: 0xA2},
		{data: []byte{0x5E, 0xB9}, want: 0x3C},
		{data: []byte{0x00, 0x00}, want: 0x81},
	}

	for _, tt := range tests {
		if got := crc8(tt.data); got != tt.want {
			t.Errorf("crc8(%x) = 0x%02x, want 0x%02x", tt.data, got, tt.want)
		}
	}
}

func TestDecodeWords_ChecksumMismatch(t *testing.T) {
	raw := words(0x01F4, 0x6667)
	raw[5] ^= 0xFF

	if _, err := decodeWords(raw); !errors.Is(err, sensor.ErrChecksum) {
		t.Errorf("decodeWords() error = %v, want ErrChecksum", err)
	}
	if _, err := decodeWords(raw[:4]); !errors.Is(err, sensor.ErrChecksum) {
		t.Errorf("decodeWords(short) error = %v, want ErrChecksum", err)
	}
}

func TestOpen(t *testing.T) {
	chip := newFakeChip()
	chip.nacks[cmdStopPeriodic.code] = 1 // nothing was running

	d, _ := openDriver(t, chip)

	if d.Serial() != 0x123456789ABC {
		t.Errorf("Serial() = %#x, want 0x123456789abc", d.Serial())
	}
	if d.Name() != "co2" {
		t.Errorf("Name() = %q, want co2", d.Name())
	}

	want := []uint16{cmdStopPeriodic.code, cmdReinit.code, cmdSerialNumber.code}
	assertCommands(t, chip.sent(), want)
}

func TestOpen_ReinitFailure(t *testing.T) {
	chip := newFakeChip()
	chip.nacks[cmdReinit.code] = 1

	h := bus.New(chip)
	_, err := Open(context.Background(), h.Device("co2", DefaultAddress), sensor.Env{Clock: stepClock{clock.NewMock()}})
	if !errors.Is(err, errNack) {
		t.Errorf("Open() error = %v, want wrapped nack", err)
	}
}

func TestFactory_DefaultAddress(t *testing.T) {
	chip := newFakeChip()
	env := sensor.Env{Bus: bus.New(chip), Clock: stepClock{clock.NewMock()}}

	s, err := Factory(context.Background(), env, sensor.Definition{Kind: Kind, Name: "co2"})
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if s.Name() != "co2" {
		t.Errorf("Name() = %q", s.Name())
	}

	// A wrong address never answers.
	_, err = Factory(context.Background(), env, sensor.Definition{Kind: Kind, Name: "co2", Address: 0x61})
	if err == nil {
		t.Error("Factory() at wrong address succeeded")
	}
}

func TestMeasure(t *testing.T) {
	chip := newFakeChip()
	chip.nacks[cmdWakeUp.code] = 2 // wake-up is never acknowledged

	d, clk := openDriver(t, chip)
	openCmds := len(chip.sent())
	start := clk.Now()

	ms := d.Measure(context.Background())
	if len(ms) != 3 {
		t.Fatalf("Measure() = %v, want 3 measurements", ms)
	}

	wantNames := []string{"co2", "humidity", "temperature"}
	wantValues := []float64{500, 37.0016, 25.0027}
	for i := range ms {
		if ms[i].Name != wantNames[i] {
			t.Errorf("measurement %d name = %q, want %q", i, ms[i].Name, wantNames[i])
		}
		if math.Abs(float64(ms[i].Value)-wantValues[i]) > 0.001 {
			t.Errorf("%s = %v, want %v", ms[i].Name, ms[i].Value, wantValues[i])
		}
	}

	want := []uint16{
		cmdWakeUp.code, cmdWakeUp.code,
		cmdMeasureSingleShot.code, cmdMeasureSingleShot.code,
		cmdReadMeasurement.code,
		cmdPowerDown.code,
	}
	assertCommands(t, chip.sent()[openCmds:], want)

	wantElapsed := 2*cmdWakeUp.delay + wakeSettle + 2*cmdMeasureSingleShot.delay +
		cmdReadMeasurement.delay + cmdPowerDown.delay
	if elapsed := clk.Now().Sub(start); elapsed != wantElapsed {
		t.Errorf("elapsed = %v, want %v", elapsed, wantElapsed)
	}
}

func TestMeasure_FailuresYieldNothing(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeChip)
	}{
		{
			name: "checksum mismatch",
			setup: func(c *fakeChip) {
				raw := words(0x01F4, 0x6667, 0x5EB9)
				raw[8] ^= 0x01
				c.responses[cmdReadMeasurement.code] = raw
			},
		},
		{
			name: "single shot not acknowledged",
			setup: func(c *fakeChip) {
				c.nacks[cmdMeasureSingleShot.code] = 2
			},
		},
		{
			name: "read not acknowledged",
			setup: func(c *fakeChip) {
				c.nacks[cmdReadMeasurement.code] = 1
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip := newFakeChip()
			d, _ := openDriver(t, chip)
			tt.setup(chip)

			if ms := d.Measure(context.Background()); len(ms) != 0 {
				t.Errorf("Measure() = %v, want none", ms)
			}

			sent := chip.sent()
			if sent[len(sent)-1] != cmdPowerDown.code {
				t.Errorf("last command = %#04x, want power down", sent[len(sent)-1])
			}
		})
	}
}

func TestMeasure_DiscardedShotFailureTolerated(t *testing.T) {
	chip := newFakeChip()
	d, _ := openDriver(t, chip)
	chip.nacks[cmdMeasureSingleShot.code] = 1

	if ms := d.Measure(context.Background()); len(ms) != 3 {
		t.Errorf("Measure() = %v, want 3 measurements", ms)
	}
}

func assertCommands(t *testing.T, got, want []uint16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("commands = %#04x, want %#04x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("commands = %#04x, want %#04x", got, want)
		}
	}
}

package bus

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

// recordingBus is an i2c.Bus that records transaction order and detects
// overlapping transactions.
type recordingBus struct {
	mu       sync.Mutex
	inFlight atomic.Int32
	overlap  atomic.Bool
	addrs    []uint16
	err      error
	delay    time.Duration
}

func (b *recordingBus) String() string { return "recording" }

func (b *recordingBus) SetSpeed(physic.Frequency) error { return nil }

func (b *recordingBus) Tx(addr uint16, _, r []byte) error {
	if b.inFlight.Add(1) > 1 {
		b.overlap.Store(true)
	}
	defer b.inFlight.Add(-1)

	if b.delay > 0 {
		time.Sleep(b.delay)
	}

	b.mu.Lock()
	b.addrs = append(b.addrs, addr)
	b.mu.Unlock()

	for i := range r {
		r[i] = byte(addr)
	}
	return b.err
}

func (b *recordingBus) order() []uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint16, len(b.addrs))
	copy(out, b.addrs)
	return out
}

func TestReadReg_Playback(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x76, W: []byte{0xD0}, R: []byte{0x60}},
			{Addr: 0x76, W: []byte{0xE0, 0xB6}},
		},
		DontPanic: true,
	}
	h := New(pb)
	dev := h.Device("bme280", 0x76)

	id, err := ReadReg(dev, 0xD0, 1)
	if err != nil {
		t.Fatalf("ReadReg() error = %v", err)
	}
	if !bytes.Equal(id, []byte{0x60}) {
		t.Errorf("ReadReg() = %x, want 60", id)
	}

	if err := WriteReg(dev, 0xE0, 0xB6); err != nil {
		t.Fatalf("WriteReg() error = %v", err)
	}

	if err := h.Close(); err != nil {
		t.Errorf("Close() error = %v (playback not fully consumed?)", err)
	}

	stats := h.Stats()
	if stats.Transactions != 2 || stats.Errors != 0 {
		t.Errorf("Stats() = %+v, want 2 transactions, 0 errors", stats)
	}
}

func TestDevice_TxErrorWrapped(t *testing.T) {
	nack := errors.New("nack")
	h := New(&recordingBus{err: nack})
	dev := h.Device("scd4x", 0x62)

	err := Write(dev, 0x36, 0xF6)
	if !errors.Is(err, ErrTransaction) {
		t.Errorf("error = %v, want ErrTransaction", err)
	}
	if !errors.Is(err, nack) {
		t.Errorf("error = %v, want wrapped nack", err)
	}
	if h.Stats().Errors != 1 {
		t.Errorf("Stats().Errors = %d, want 1", h.Stats().Errors)
	}
}

func TestHandle_Closed(t *testing.T) {
	h := New(&recordingBus{})
	dev := h.Device("tsl2591", 0x29)

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if _, err := Read(dev, 2); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() after Close error = %v, want ErrClosed", err)
	}
}

func TestHandle_SerialisesTransactions(t *testing.T) {
	rb := &recordingBus{delay: time.Millisecond}
	h := New(rb)

	var wg sync.WaitGroup
	for addr := uint16(0x10); addr < 0x18; addr++ {
		dev := h.Device("dev", addr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, _ = ReadReg(dev, 0x00, 1)
			}
		}()
	}
	wg.Wait()

	if rb.overlap.Load() {
		t.Error("transactions overlapped on the bus")
	}
	if got := len(rb.order()); got != 40 {
		t.Errorf("transactions = %d, want 40", got)
	}
}

func TestDevice_ExclusiveIsNotInterleaved(t *testing.T) {
	rb := &recordingBus{delay: time.Millisecond}
	h := New(rb)
	long := h.Device("long", 0x62)
	other := h.Device("other", 0x29)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- long.Exclusive(func(c Conn) error {
			close(started)
			for i := 0; i < 5; i++ {
				if err := Write(c, 0x21, 0x9D); err != nil {
					return err
				}
			}
			return nil
		})
	}()

	<-started
	if _, err := Read(other, 1); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Exclusive() error = %v", err)
	}

	order := rb.order()
	want := []uint16{0x62, 0x62, 0x62, 0x62, 0x62, 0x29}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

package bus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Conn is a register-level view of one peripheral.
// It is satisfied by *Device and by the connection passed to Device.Exclusive.
type Conn interface {
	// Tx writes w then reads len(r) bytes into r in one bus transaction.
	// Either w or r may be empty.
	Tx(w, r []byte) error
}

// Stats holds bus transaction counters.
type Stats struct {
	Transactions uint64
	Errors       uint64
}

// Handle is the single owner of an I2C bus, shared by every sensor.
//
// Thread Safety: all transactions are serialised by an internal mutex.
type Handle struct {
	mu     sync.Mutex
	bus    i2c.Bus
	closer func() error
	closed bool
	stats  Stats
}

// New wraps an already opened bus.
// Closing the Handle closes b if it implements i2c.BusCloser.
func New(b i2c.Bus) *Handle {
	h := &Handle{bus: b}
	if bc, ok := b.(i2c.BusCloser); ok {
		h.closer = bc.Close
	}
	return h
}

// OpenHost initialises the periph.io host drivers and opens the named I2C
// bus ("" selects the first available bus). A non-zero speed is applied with
// SetSpeed.
func OpenHost(name string, speed physic.Frequency) (*Handle, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: host init: %w", ErrOpenFailed, err)
	}

	bc, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrOpenFailed, name, err)
	}

	if speed > 0 {
		if err := bc.SetSpeed(speed); err != nil {
			_ = bc.Close()
			return nil, fmt.Errorf("%w: setting speed %s: %w", ErrOpenFailed, speed, err)
		}
	}

	return New(bc), nil
}

// Device returns the peripheral at addr on this bus.
// name is used in error messages only.
func (h *Handle) Device(name string, addr uint16) *Device {
	return &Device{handle: h, name: name, addr: addr}
}

// Stats returns a snapshot of the transaction counters.
func (h *Handle) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// String returns the underlying bus name.
func (h *Handle) String() string {
	return h.bus.String()
}

// Close releases the bus. Further transactions fail with ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if h.closer != nil {
		if err := h.closer(); err != nil {
			return fmt.Errorf("closing bus: %w", err)
		}
	}
	return nil
}

// tx performs one transaction. Caller must hold h.mu.
func (h *Handle) tx(d *Device, w, r []byte) error {
	if h.closed {
		return ErrClosed
	}

	h.stats.Transactions++
	if err := h.bus.Tx(d.addr, w, r); err != nil {
		h.stats.Errors++
		return fmt.Errorf("%w: %s@0x%02x: %w", ErrTransaction, d.name, d.addr, err)
	}
	return nil
}

// Device is one addressed peripheral on a shared Handle.
type Device struct {
	handle *Handle
	name   string
	addr   uint16
}

// Tx implements Conn. The bus is held for this single transaction.
func (d *Device) Tx(w, r []byte) error {
	d.handle.mu.Lock()
	defer d.handle.mu.Unlock()
	return d.handle.tx(d, w, r)
}

// Exclusive holds the bus for the whole of fn, so a multi-step device
// protocol cannot be interleaved with another device's transactions.
// fn must use the Conn it is given, not d, or it will deadlock.
func (d *Device) Exclusive(fn func(c Conn) error) error {
	d.handle.mu.Lock()
	defer d.handle.mu.Unlock()
	return fn(heldConn{d})
}

// Name returns the device name given to Handle.Device.
func (d *Device) Name() string {
	return d.name
}

// Addr returns the 7-bit device address.
func (d *Device) Addr() uint16 {
	return d.addr
}

// heldConn issues transactions while Exclusive already holds the bus lock.
type heldConn struct {
	d *Device
}

func (c heldConn) Tx(w, r []byte) error {
	return c.d.handle.tx(c.d, w, r)
}

// Write sends raw bytes to the device.
func Write(c Conn, data ...byte) error {
	return c.Tx(data, nil)
}

// Read reads n raw bytes from the device.
func Read(c Conn, n int) ([]byte, error) {
	r := make([]byte, n)
	if err := c.Tx(nil, r); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteReg writes data to the register reg.
func WriteReg(c Conn, reg byte, data ...byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	return c.Tx(w, nil)
}

// ReadReg reads n bytes starting at register reg.
func ReadReg(c Conn, reg byte, n int) ([]byte, error) {
	r := make([]byte, n)
	if err := c.Tx([]byte{reg}, r); err != nil {
		return nil, err
	}
	return r, nil
}

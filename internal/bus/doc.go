// Package bus provides a shared, serialising handle over a half-duplex I2C
// bus for the sensor drivers.
//
// One Handle owns the underlying periph.io bus. Each sensor receives its own
// Device (bus + address) from the Handle. Every transaction takes the
// Handle's lock, so only one transaction is ever in flight. A driver whose
// protocol spans several transactions (wake, trigger, read, power down) runs
// it inside Device.Exclusive so no other device can interleave.
//
// # Usage
//
//	h, err := bus.OpenHost("", 100*physic.KiloHertz)
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	dev := h.Device("bme280", 0x76)
//	id, err := bus.ReadReg(dev, 0xD0, 1)
package bus

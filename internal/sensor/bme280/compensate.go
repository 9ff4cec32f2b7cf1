package bme280

import (
	"encoding/binary"
	"fmt"
)

// Raw values the chip reports for a channel whose oversampling is Skip.
const (
	skippedTP       = 0x80000
	skippedHumidity = 0x8000
)

// calibration holds the factory trimming parameters.
type calibration struct {
	T1 uint16
	T2 int16
	T3 int16

	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16

	H1 uint8
	H2 int16
	H3 uint8
	H4 int16
	H5 int16
	H6 int8
}

// parseCalibration decodes the 26-byte block at 0x88 and the 7-byte block
// at 0xE1.
func parseCalibration(tp, hum []byte) (calibration, error) {
	if len(tp) != 26 || len(hum) != 7 {
		return calibration{}, fmt.Errorf("calibration blocks are %d and %d bytes, want 26 and 7", len(tp), len(hum))
	}

	le := binary.LittleEndian
	s16 := func(b []byte) int16 { return int16(le.Uint16(b)) }

	return calibration{
		T1: le.Uint16(tp[0:]),
		T2: s16(tp[2:]),
		T3: s16(tp[4:]),
		P1: le.Uint16(tp[6:]),
		P2: s16(tp[8:]),
		P3: s16(tp[10:]),
		P4: s16(tp[12:]),
		P5: s16(tp[14:]),
		P6: s16(tp[16:]),
		P7: s16(tp[18:]),
		P8: s16(tp[20:]),
		P9: s16(tp[22:]),
		H1: tp[25],
		H2: s16(hum[0:]),
		H3: hum[2],
		// H4 and H5 share the nibbles of 0xE5.
		H4: int16(int8(hum[3]))<<4 | int16(hum[4]&0x0F),
		H5: int16(int8(hum[5]))<<4 | int16(hum[4]>>4),
		H6: int8(hum[6]),
	}, nil
}

// rawSample is one 8-byte data burst from 0xF7.
type rawSample struct {
	pressure    int32
	temperature int32
	humidity    int32
}

func parseBurst(b []byte) rawSample {
	return rawSample{
		pressure:    int32(b[0])<<12 | int32(b[1])<<4 | int32(b[2])>>4,
		temperature: int32(b[3])<<12 | int32(b[4])<<4 | int32(b[5])>>4,
		humidity:    int32(b[6])<<8 | int32(b[7]),
	}
}

// Sample is one compensated reading. A nil field means the channel was
// skipped.
type Sample struct {
	Temperature *float64 // °C
	Pressure    *float64 // Pa
	Humidity    *float64 // %RH
}

// compensate converts a raw burst into physical units. Pressure and humidity
// are compensated with t_fine, so a skipped temperature channel leaves every
// field nil.
func (c calibration) compensate(raw rawSample) Sample {
	if raw.temperature == skippedTP {
		return Sample{}
	}

	temp, tFine := c.temperature(raw.temperature)
	s := Sample{Temperature: &temp}

	if raw.pressure != skippedTP {
		p := c.pressure(raw.pressure, tFine)
		s.Pressure = &p
	}
	if raw.humidity != skippedHumidity {
		h := c.humidity(raw.humidity, tFine)
		s.Humidity = &h
	}
	return s
}

func (c calibration) temperature(adc int32) (celsius, tFine float64) {
	var1 := (float64(adc)/16384 - float64(c.T1)/1024) * float64(c.T2)
	d := float64(adc)/131072 - float64(c.T1)/8192
	var2 := d * d * float64(c.T3)
	tFine = var1 + var2
	return tFine / 5120, tFine
}

func (c calibration) pressure(adc int32, tFine float64) float64 {
	var1 := tFine/2 - 64000
	var2 := var1 * var1 * float64(c.P6) / 32768
	var2 += var1 * float64(c.P5) * 2
	var2 = var2/4 + float64(c.P4)*65536
	var1 = (float64(c.P3)*var1*var1/524288 + float64(c.P2)*var1) / 524288
	var1 = (1 + var1/32768) * float64(c.P1)
	if var1 == 0 {
		return 0
	}

	p := 1048576 - float64(adc)
	p = (p - var2/4096) * 6250 / var1
	var1 = float64(c.P9) * p * p / 2147483648
	var2 = p * float64(c.P8) / 32768
	return p + (var1+var2+float64(c.P7))/16
}

func (c calibration) humidity(adc int32, tFine float64) float64 {
	h := tFine - 76800
	h = (float64(adc) - (float64(c.H4)*64 + float64(c.H5)/16384*h)) *
		(float64(c.H2) / 65536 * (1 + float64(c.H6)/67108864*h*(1+float64(c.H3)/67108864*h)))
	h *= 1 - float64(c.H1)*h/524288

	switch {
	case h > 100:
		return 100
	case h < 0:
		return 0
	}
	return h
}

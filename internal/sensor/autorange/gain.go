package autorange

import (
	"fmt"
	"time"
)

// Gain is one step of the ordered amplifier lattice.
type Gain int

// Gain levels, lowest first.
const (
	Low Gain = iota
	Medium
	High
	Max
)

// DefaultGain is where every search starts. It is not carried between cycles.
const DefaultGain = Medium

// String returns the gain name used in logs.
func (g Gain) String() string {
	switch g {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Max:
		return "max"
	default:
		return fmt.Sprintf("gain(%d)", int(g))
	}
}

// Increment returns the next higher gain, or ErrGainMaxed at Max.
func (g Gain) Increment() (Gain, error) {
	if g >= Max {
		return g, ErrGainMaxed
	}
	return g + 1, nil
}

// Decrement returns the next lower gain, or ErrGainMinimal at Low.
func (g Gain) Decrement() (Gain, error) {
	if g <= Low {
		return g, ErrGainMinimal
	}
	return g - 1, nil
}

// Integration is the ADC integration time.
type Integration int

// Integration times supported by the optical front end.
const (
	Integration100ms Integration = iota
	Integration200ms
	Integration300ms
	Integration400ms
	Integration500ms
	Integration600ms
)

// DefaultIntegration is the fixed integration time used by the search.
const DefaultIntegration = Integration100ms

// Duration returns the integration time as a time.Duration.
func (t Integration) Duration() time.Duration {
	return time.Duration(int(t)+1) * 100 * time.Millisecond
}

// String returns the integration time, e.g. "100ms".
func (t Integration) String() string {
	return t.Duration().String()
}

package sensor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/sensorlink/internal/bus"
	"github.com/nerrad567/sensorlink/internal/telemetry"
)

// Sensor is the capability shared by every driver.
type Sensor interface {
	// Name identifies the sensor instance in logs.
	Name() string

	// Measure takes one reading. It returns zero or more measurements and
	// never fails: transaction errors are logged by the driver.
	Measure(ctx context.Context) []telemetry.Measurement
}

// Logger is the logging interface used by drivers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Env carries the shared resources a driver needs.
type Env struct {
	Bus    *bus.Handle
	Clock  clock.Clock
	Logger Logger
}

// WithDefaults fills in a wall clock and a no-op logger where unset.
func (e Env) WithDefaults() Env {
	if e.Clock == nil {
		e.Clock = clock.New()
	}
	if e.Logger == nil {
		e.Logger = noopLogger{}
	}
	return e
}

// Definition is one configured sensor instance.
type Definition struct {
	Kind    string
	Name    string
	Address uint16 // 0 selects the driver's default address
}

// Factory opens and initialises one sensor.
type Factory func(ctx context.Context, env Env, def Definition) (Sensor, error)

// Registry maps sensor kinds to factories.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Open builds a single sensor.
func (r *Registry) Open(ctx context.Context, env Env, def Definition) (Sensor, error) {
	r.mu.RLock()
	f, ok := r.factories[def.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w %q", ErrInitFailed, def.Name, ErrUnknownKind, def.Kind)
	}

	s, err := f(ctx, env.WithDefaults(), def)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%s): %w", ErrInitFailed, def.Name, def.Kind, err)
	}
	return s, nil
}

// OpenAll builds the sensors in configuration order. It stops at the first
// failure; the error wraps ErrInitFailed and names the sensor.
func (r *Registry) OpenAll(ctx context.Context, env Env, defs []Definition) ([]Sensor, error) {
	env = env.WithDefaults()
	seen := make(map[string]bool, len(defs))
	sensors := make([]Sensor, 0, len(defs))

	for _, def := range defs {
		if seen[def.Name] {
			return nil, fmt.Errorf("%w: %w %q", ErrInitFailed, ErrDuplicateName, def.Name)
		}
		seen[def.Name] = true

		s, err := r.Open(ctx, env, def)
		if err != nil {
			return nil, err
		}
		env.Logger.Info("sensor initialised", "sensor", def.Name, "kind", def.Kind)
		sensors = append(sensors, s)
	}
	return sensors, nil
}

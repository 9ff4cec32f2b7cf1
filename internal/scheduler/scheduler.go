package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
)

// Defaults match a five-minute cadence with ±10% jitter.
const (
	DefaultPeriod = 300 * time.Second
	DefaultJitter = 0.1
)

// Jitter draws a uniform offset in [-fraction*period, +fraction*period].
func Jitter(period time.Duration, fraction float64, rng *rand.Rand) time.Duration {
	if fraction <= 0 || period <= 0 {
		return 0
	}
	span := fraction * float64(period)
	return time.Duration((rng.Float64()*2 - 1) * span)
}

// Logger is the logging interface used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Config configures a Scheduler.
type Config struct {
	Period time.Duration
	Jitter float64 // fraction of Period

	Clock  clock.Clock
	Logger Logger
	Rand   *rand.Rand // nil seeds from the runtime
}

// Scheduler runs a cycle function immediately and then once per jittered
// period until its context is cancelled.
type Scheduler struct {
	period time.Duration
	jitter float64
	clock  clock.Clock
	logger Logger
	rng    *rand.Rand
	cycles uint64
}

// New validates cfg and creates a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeriod, cfg.Period)
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJitter, cfg.Jitter)
	}

	s := &Scheduler{
		period: cfg.Period,
		jitter: cfg.Jitter,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		rng:    cfg.Rand,
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s, nil
}

// NextDelay returns period plus a fresh jitter draw.
func (s *Scheduler) NextDelay() time.Duration {
	return s.period + Jitter(s.period, s.jitter, s.rng)
}

// Cycles returns the number of cycles started so far.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles
}

// Run invokes cycle now and after every delay until ctx is done. Cycles are
// never interrupted; cancellation is observed between them. It returns
// ctx.Err().
func (s *Scheduler) Run(ctx context.Context, cycle func(ctx context.Context)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.cycles++
		cycle(ctx)

		delay := s.NextDelay()
		timer := s.clock.Timer(delay)
		s.logger.Debug("next cycle scheduled", "in", delay, "cycle", s.cycles)

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped", "cycles", s.cycles)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/sensorlink/internal/sensor"
	"github.com/nerrad567/sensorlink/internal/telemetry"
)

// Link brings the network path to the collector up and down.
type Link interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Sender delivers one batch to the collector.
type Sender interface {
	Send(ctx context.Context, b telemetry.Batch) error
}

// Observer is notified at the end of every cycle.
type Observer interface {
	ObserveCycle(ctx context.Context, r Report)
}

// Logger is the logging interface used by the pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Report describes one completed cycle.
type Report struct {
	Started  time.Time
	Duration time.Duration

	// Measurements is the number of values produced by polling.
	Measurements int
	// Enqueued is true when a batch was pushed this cycle.
	Enqueued bool
	// Evicted is true when pushing dropped the oldest batch.
	Evicted bool
	// EvictedTotal is the running eviction count of the buffer.
	EvictedTotal uint64

	Connected bool
	LinkErr   error

	// Delivered is the number of batches sent this cycle.
	Delivered int
	// LastDelivered is the timestamp of the newest batch sent this cycle.
	LastDelivered uint64
	SendErr       error

	// Pending is the buffer length after draining.
	Pending int
}

// Config holds the collaborators of a Pipeline.
type Config struct {
	Sensors []sensor.Sensor
	Buffer  *telemetry.Buffer
	Link    Link
	Sender  Sender

	// Linger keeps the link up after draining. Zero disables it.
	Linger time.Duration

	Observers []Observer
	Clock     clock.Clock
	Logger    Logger
}

// Pipeline runs delivery cycles. It is not safe for concurrent RunCycle
// calls; the scheduler runs one cycle at a time.
type Pipeline struct {
	sensors   []sensor.Sensor
	buffer    *telemetry.Buffer
	link      Link
	sender    Sender
	linger    time.Duration
	observers []Observer
	clock     clock.Clock
	logger    Logger
}

// New validates cfg and creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Buffer == nil {
		return nil, fmt.Errorf("%w: buffer is required", ErrInvalidConfig)
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidConfig)
	}
	if cfg.Link == nil {
		return nil, fmt.Errorf("%w: link is required", ErrInvalidConfig)
	}
	if cfg.Linger < 0 {
		return nil, fmt.Errorf("%w: linger must not be negative", ErrInvalidConfig)
	}

	p := &Pipeline{
		sensors:   cfg.Sensors,
		buffer:    cfg.Buffer,
		link:      cfg.Link,
		sender:    cfg.Sender,
		linger:    cfg.Linger,
		observers: cfg.Observers,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if p.clock == nil {
		p.clock = clock.New()
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	return p, nil
}

// RunCycle performs one poll, enqueue, connect, drain, release cycle.
// It never fails: every problem is logged and reflected in the Report.
func (p *Pipeline) RunCycle(ctx context.Context) Report {
	r := Report{Started: p.clock.Now()}

	measurements := p.poll(ctx)
	r.Measurements = len(measurements)

	if len(measurements) > 0 {
		b := telemetry.NewBatch(p.clock.Now(), measurements)
		dropped, evicted := p.buffer.Push(b)
		r.Enqueued = true
		if evicted {
			r.Evicted = true
			p.logger.Warn("retry buffer full, dropped oldest batch",
				"dropped_timestamp", dropped.Timestamp,
				"evicted_total", p.buffer.Evicted(),
			)
		}
	} else {
		p.logger.Warn("no measurements this cycle")
	}
	r.EvictedTotal = p.buffer.Evicted()

	if err := p.link.Connect(ctx); err != nil {
		r.LinkErr = err
		p.logger.Error("link connect failed, delivery skipped", "error", err, "pending", p.buffer.Len())
	} else {
		r.Connected = true
		p.drain(ctx, &r)

		if p.linger > 0 {
			p.clock.Sleep(p.linger)
		}
	}

	r.Pending = p.buffer.Len()
	r.Duration = p.clock.Since(r.Started)

	for _, o := range p.observers {
		o.ObserveCycle(ctx, r)
	}

	if r.Connected {
		if err := p.link.Disconnect(ctx); err != nil {
			p.logger.Warn("link disconnect failed", "error", err)
		}
	}

	p.logger.Info("cycle complete",
		"measurements", r.Measurements,
		"delivered", r.Delivered,
		"pending", r.Pending,
		"evicted_total", r.EvictedTotal,
		"duration", r.Duration,
	)
	return r
}

// poll collects measurements from every sensor in order.
func (p *Pipeline) poll(ctx context.Context) []telemetry.Measurement {
	var out []telemetry.Measurement
	for _, s := range p.sensors {
		if ctx.Err() != nil {
			break
		}
		ms := s.Measure(ctx)
		if len(ms) == 0 {
			p.logger.Warn("sensor produced no measurements", "sensor", s.Name())
		}
		out = append(out, ms...)
	}
	return out
}

// drain sends batches oldest first until the buffer is empty or a send
// fails. A failed batch is put back at the front.
func (p *Pipeline) drain(ctx context.Context, r *Report) {
	for {
		b, err := p.buffer.Pop()
		if errors.Is(err, telemetry.ErrEmpty) {
			return
		}

		if err := p.sender.Send(ctx, b); err != nil {
			r.SendErr = err
			if qerr := p.buffer.Requeue(b); qerr != nil {
				// Only possible if something else filled the buffer meanwhile.
				p.logger.Error("requeue failed, batch lost", "timestamp", b.Timestamp, "error", qerr)
			}
			p.logger.Warn("send failed, will retry next cycle",
				"timestamp", b.Timestamp,
				"pending", p.buffer.Len(),
				"error", err,
			)
			return
		}

		r.Delivered++
		r.LastDelivered = b.Timestamp
		p.logger.Debug("batch delivered", "timestamp", b.Timestamp, "measurements", b.Len())
	}
}

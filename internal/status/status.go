package status

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/sensorlink/internal/bus"
	"github.com/nerrad567/sensorlink/internal/pipeline"
)

// Health is the operational state carried in a Message.
type Health string

const (
	// Healthy means the cycle measured and delivered everything.
	Healthy Health = "healthy"

	// Degraded means the cycle lost data or left a backlog.
	Degraded Health = "degraded"
)

// Message is the retained status payload.
type Message struct {
	Site      string    `json:"site"`
	Version   string    `json:"version,omitempty"`
	Status    Health    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	CycleStarted  time.Time `json:"cycle_started"`
	CycleDuration float64   `json:"cycle_duration_seconds"`
	Measurements  int       `json:"measurements"`
	Delivered     int       `json:"delivered"`
	Pending       int       `json:"pending"`
	EvictedTotal  uint64    `json:"evicted_total"`

	// LastDelivered is the timestamp of the newest batch delivered by this
	// node since start, zero if none yet.
	LastDelivered uint64 `json:"last_delivered,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	BusTransactions uint64 `json:"bus_transactions"`
	BusErrors       uint64 `json:"bus_errors"`

	// SensorSerials maps sensor names to chip serial numbers, for sensors
	// that report one.
	SensorSerials map[string]string `json:"sensor_serials,omitempty"`
}

// Publisher sends a retained message. Typically implemented by the MQTT
// client.
type Publisher interface {
	PublishRetained(ctx context.Context, topic string, payload []byte) error
}

// Logger is the logging interface used by the reporter.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// BusStats reports transaction counters. Implemented by *bus.Handle.
type BusStats interface {
	Stats() bus.Stats
}

// Config holds the reporter's collaborators.
type Config struct {
	Publisher Publisher
	Topic     string
	Site      string
	Version   string

	// Bus is optional.
	Bus           BusStats
	SensorSerials map[string]string

	Clock  clock.Clock
	Logger Logger
}

// Reporter is a pipeline.Observer that publishes one Message per cycle.
// ObserveCycle is called from the cycle goroutine only.
type Reporter struct {
	publisher Publisher
	topic     string
	site      string
	version   string
	bus       BusStats
	serials   map[string]string
	clock     clock.Clock
	logger    Logger

	startTime     time.Time
	lastDelivered uint64
}

// New creates a Reporter. Publishing is disabled when cfg.Publisher is nil.
func New(cfg Config) *Reporter {
	r := &Reporter{
		publisher: cfg.Publisher,
		topic:     cfg.Topic,
		site:      cfg.Site,
		version:   cfg.Version,
		bus:       cfg.Bus,
		serials:   cfg.SensorSerials,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	r.startTime = r.clock.Now()
	return r
}

// ObserveCycle publishes the status of r. Failures are logged and never
// affect the cycle.
func (s *Reporter) ObserveCycle(ctx context.Context, r pipeline.Report) {
	if r.LastDelivered > s.lastDelivered {
		s.lastDelivered = r.LastDelivered
	}
	if s.publisher == nil {
		return
	}
	if !r.Connected {
		s.logger.Debug("status not published, link down")
		return
	}

	payload, err := json.Marshal(s.Build(r))
	if err != nil {
		s.logger.Warn("encoding status failed", "error", err)
		return
	}
	if err := s.publisher.PublishRetained(ctx, s.topic, payload); err != nil {
		s.logger.Warn("publishing status failed", "topic", s.topic, "error", err)
		return
	}
	s.logger.Debug("status published", "topic", s.topic)
}

// Build renders the Message for r.
func (s *Reporter) Build(r pipeline.Report) Message {
	health, reason := Evaluate(r)
	now := s.clock.Now()
	msg := Message{
		Site:          s.site,
		Version:       s.version,
		Status:        health,
		Reason:        reason,
		Timestamp:     now.UTC(),
		CycleStarted:  r.Started.UTC(),
		CycleDuration: r.Duration.Seconds(),
		Measurements:  r.Measurements,
		Delivered:     r.Delivered,
		Pending:       r.Pending,
		EvictedTotal:  r.EvictedTotal,
		LastDelivered: s.lastDelivered,
		UptimeSeconds: int64(now.Sub(s.startTime).Seconds()),
		SensorSerials: s.serials,
	}
	if s.bus != nil {
		st := s.bus.Stats()
		msg.BusTransactions = st.Transactions
		msg.BusErrors = st.Errors
	}
	return msg
}

// Evaluate derives the health of one cycle. The first problem found is
// reported as the reason.
func Evaluate(r pipeline.Report) (Health, string) {
	switch {
	case r.SendErr != nil:
		return Degraded, "send failed: " + r.SendErr.Error()
	case r.Evicted:
		return Degraded, "retry buffer full, oldest batch dropped"
	case r.Measurements == 0:
		return Degraded, "no measurements"
	case r.Pending > 0:
		return Degraded, "backlog pending"
	}
	return Healthy, ""
}

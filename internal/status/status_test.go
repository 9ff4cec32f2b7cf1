package status

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/sensorlink/internal/bus"
	"github.com/nerrad567/sensorlink/internal/pipeline"
)

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) PublishRetained(_ context.Context, topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeBus struct{ stats bus.Stats }

func (f fakeBus) Stats() bus.Stats { return f.stats }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		report     pipeline.Report
		want       Health
		wantReason string
	}{
		{name: "healthy", report: pipeline.Report{Measurements: 4, Delivered: 1}, want: Healthy},
		{name: "send failed", report: pipeline.Report{Measurements: 4, SendErr: errors.New("refused"), Pending: 1}, want: Degraded, wantReason: "send failed: refused"},
		{name: "evicted", report: pipeline.Report{Measurements: 4, Evicted: true}, want: Degraded, wantReason: "retry buffer full"},
		{name: "no measurements", report: pipeline.Report{}, want: Degraded, wantReason: "no measurements"},
		{name: "backlog", report: pipeline.Report{Measurements: 4, Pending: 2}, want: Degraded, wantReason: "backlog pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Evaluate(tt.report)
			if got != tt.want {
				t.Errorf("Evaluate() = %s, want %s", got, tt.want)
			}
			if !strings.HasPrefix(reason, tt.wantReason) {
				t.Errorf("reason = %q, want prefix %q", reason, tt.wantReason)
			}
		})
	}
}

func TestReporter_PublishesRetainedStatus(t *testing.T) {
	clk := clock.NewMock()
	pub := &fakePublisher{}
	r := New(Config{
		Publisher: pub,
		Topic:     "sensorlink/status/greenhouse",
		Site:      "greenhouse",
		Version:   "1.0.0",
		Clock:     clk,
	})

	clk.Add(10 * time.Minute)
	r.ObserveCycle(context.Background(), pipeline.Report{
		Started:       clk.Now(),
		Duration:      1500 * time.Millisecond,
		Measurements:  5,
		Connected:     true,
		Delivered:     2,
		LastDelivered: 1700000300,
		EvictedTotal:  3,
	})

	if len(pub.topics) != 1 || pub.topics[0] != "sensorlink/status/greenhouse" {
		t.Fatalf("topics = %v", pub.topics)
	}

	var msg Message
	if err := json.Unmarshal(pub.payloads[0], &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Status != Healthy || msg.Site != "greenhouse" || msg.Version != "1.0.0" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Delivered != 2 || msg.EvictedTotal != 3 || msg.LastDelivered != 1700000300 {
		t.Errorf("counters = %+v", msg)
	}
	if msg.CycleDuration != 1.5 {
		t.Errorf("CycleDuration = %v, want 1.5", msg.CycleDuration)
	}
	if msg.UptimeSeconds != 600 {
		t.Errorf("UptimeSeconds = %d, want 600", msg.UptimeSeconds)
	}
}

func TestReporter_SkipsWhenLinkDown(t *testing.T) {
	pub := &fakePublisher{}
	r := New(Config{Publisher: pub, Topic: "t", Clock: clock.NewMock()})

	r.ObserveCycle(context.Background(), pipeline.Report{Measurements: 3, LinkErr: errors.New("no carrier")})
	if len(pub.payloads) != 0 {
		t.Errorf("published %d messages with link down, want 0", len(pub.payloads))
	}
}

func TestReporter_KeepsLastDeliveredAcrossCycles(t *testing.T) {
	pub := &fakePublisher{}
	r := New(Config{Publisher: pub, Topic: "t", Clock: clock.NewMock()})
	ctx := context.Background()

	r.ObserveCycle(ctx, pipeline.Report{Measurements: 3, Connected: true, Delivered: 1, LastDelivered: 1000})
	r.ObserveCycle(ctx, pipeline.Report{Measurements: 3, Connected: true, SendErr: errors.New("refused"), Pending: 1})

	var msg Message
	if err := json.Unmarshal(pub.payloads[1], &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.LastDelivered != 1000 {
		t.Errorf("LastDelivered = %d, want 1000", msg.LastDelivered)
	}
	if msg.Status != Degraded {
		t.Errorf("Status = %s, want degraded", msg.Status)
	}
}

func TestReporter_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	r := New(Config{Publisher: pub, Topic: "t", Clock: clock.NewMock()})

	// Must not panic or block.
	r.ObserveCycle(context.Background(), pipeline.Report{Measurements: 1, Connected: true})
}

func TestReporter_NilPublisher(t *testing.T) {
	r := New(Config{Clock: clock.NewMock()})
	r.ObserveCycle(context.Background(), pipeline.Report{Connected: true, LastDelivered: 5})
	if r.lastDelivered != 5 {
		t.Errorf("lastDelivered = %d, want 5", r.lastDelivered)
	}
}

func TestReporter_IncludesBusStatsAndSerials(t *testing.T) {
	pub := &fakePublisher{}
	r := New(Config{
		Publisher:     pub,
		Topic:         "t",
		Bus:           fakeBus{stats: bus.Stats{Transactions: 120, Errors: 2}},
		SensorSerials: map[string]string{"co2": "0x123456789abc"},
		Clock:         clock.NewMock(),
	})

	r.ObserveCycle(context.Background(), pipeline.Report{Measurements: 3, Connected: true})

	var msg Message
	if err := json.Unmarshal(pub.payloads[0], &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.BusTransactions != 120 || msg.BusErrors != 2 {
		t.Errorf("bus = %d/%d, want 120/2", msg.BusTransactions, msg.BusErrors)
	}
	if msg.SensorSerials["co2"] != "0x123456789abc" {
		t.Errorf("SensorSerials = %v", msg.SensorSerials)
	}
}

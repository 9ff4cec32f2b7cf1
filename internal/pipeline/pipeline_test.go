package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/sensorlink/internal/sensor"
	"github.com/nerrad567/sensorlink/internal/telemetry"
)

const epoch = 1700000000

type stepClock struct {
	*clock.Mock
}

func (c stepClock) Sleep(d time.Duration) { c.Add(d) }

func newClock() stepClock {
	m := clock.NewMock()
	m.Set(time.Unix(epoch, 0))
	return stepClock{m}
}

// events records the order of collaborator calls across fakes.
type events []string

func (e *events) add(s string) { *e = append(*e, s) }

type fakeSensor struct {
	name string
	ms   []telemetry.Measurement
}

func (s *fakeSensor) Name() string { return s.name }

func (s *fakeSensor) Measure(context.Context) []telemetry.Measurement { return s.ms }

type fakeLink struct {
	log           *events
	connectErr    error
	disconnectErr error
	connects      int
	disconnects   int
}

func (l *fakeLink) Connect(context.Context) error {
	l.connects++
	l.log.add("connect")
	return l.connectErr
}

func (l *fakeLink) Disconnect(context.Context) error {
	l.disconnects++
	l.log.add("disconnect")
	return l.disconnectErr
}

type fakeSender struct {
	log    *events
	failAt map[uint64]bool
	fail   func(b telemetry.Batch) bool
	sent   []uint64
}

func (s *fakeSender) Send(_ context.Context, b telemetry.Batch) error {
	s.log.add("send")
	if s.failAt[b.Timestamp] || (s.fail != nil && s.fail(b)) {
		return errors.New("connection refused")
	}
	s.sent = append(s.sent, b.Timestamp)
	return nil
}

type fakeObserver struct {
	log     *events
	reports []Report
}

func (o *fakeObserver) ObserveCycle(_ context.Context, r Report) {
	o.log.add("observe")
	o.reports = append(o.reports, r)
}

func batchAt(ts uint64) telemetry.Batch {
	return telemetry.Batch{Timestamp: ts, Measurements: []telemetry.Measurement{{Name: "co2", Value: 400}}}
}

func bufferOf(t *testing.T, capacity int, ts ...uint64) *telemetry.Buffer {
	t.Helper()
	buf, err := telemetry.NewBuffer(capacity)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	for _, v := range ts {
		buf.Push(batchAt(v))
	}
	return buf
}

func pending(buf *telemetry.Buffer) []uint64 {
	var out []uint64
	for _, b := range buf.Snapshot() {
		out = append(out, b.Timestamp)
	}
	return out
}

func equal(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type harness struct {
	log      *events
	link     *fakeLink
	sender   *fakeSender
	observer *fakeObserver
	clock    stepClock
	pipeline *Pipeline
}

func newHarness(t *testing.T, buf *telemetry.Buffer, sensors ...sensor.Sensor) *harness {
	t.Helper()
	log := &events{}
	h := &harness{
		log:      log,
		link:     &fakeLink{log: log},
		sender:   &fakeSender{log: log, failAt: map[uint64]bool{}},
		observer: &fakeObserver{log: log},
		clock:    newClock(),
	}
	p, err := New(Config{
		Sensors:   sensors,
		Buffer:    buf,
		Link:      h.link,
		Sender:    h.sender,
		Observers: []Observer{h.observer},
		Clock:     h.clock,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.pipeline = p
	return h
}

func TestNew_Validation(t *testing.T) {
	buf := bufferOf(t, 1)
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no buffer", cfg: Config{Sender: &fakeSender{}, Link: &fakeLink{}}},
		{name: "no sender", cfg: Config{Buffer: buf, Link: &fakeLink{}}},
		{name: "no link", cfg: Config{Buffer: buf, Sender: &fakeSender{}}},
		{name: "negative linger", cfg: Config{Buffer: buf, Sender: &fakeSender{}, Link: &fakeLink{}, Linger: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestRunCycle_PartialDrainRequeuesFailedBatch(t *testing.T) {
	buf := bufferOf(t, 2, 200, 300)
	h := newHarness(t, buf)
	h.sender.failAt[300] = true

	r := h.pipeline.RunCycle(context.Background())

	if r.Delivered != 1 || r.LastDelivered != 200 || r.SendErr == nil {
		t.Errorf("report = %+v, want 1 delivered (200) and a send error", r)
	}
	if got := pending(buf); !equal(got, []uint64{300}) {
		t.Fatalf("pending = %v, want [300]", got)
	}

	// The next successful drain attempts 300 first.
	h.sender.failAt[300] = false
	h.sender.sent = nil
	h.pipeline.RunCycle(context.Background())

	if len(h.sender.sent) == 0 || h.sender.sent[0] != 300 {
		t.Errorf("sent = %v, want 300 first", h.sender.sent)
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
}

func TestRunCycle_ReleaseFailureIsNotFatal(t *testing.T) {
	buf := bufferOf(t, 4, 100)
	h := newHarness(t, buf)
	h.link.disconnectErr = errors.New("radio busy")

	r1 := h.pipeline.RunCycle(context.Background())
	if !r1.Connected || r1.Delivered != 1 || r1.Pending != 0 {
		t.Errorf("first report = %+v, want 1 delivered and nothing pending", r1)
	}
	if r1.LinkErr != nil || r1.SendErr != nil {
		t.Errorf("first report errors = %v, %v, want none", r1.LinkErr, r1.SendErr)
	}

	buf.Push(batchAt(200))
	r2 := h.pipeline.RunCycle(context.Background())
	if !r2.Connected || r2.Delivered != 1 || r2.LastDelivered != 200 {
		t.Errorf("second report = %+v, want 200 delivered", r2)
	}
	if h.link.connects != 2 || h.link.disconnects != 2 {
		t.Errorf("connects = %d, disconnects = %d, want 2 and 2", h.link.connects, h.link.disconnects)
	}
	if !equal(h.sender.sent, []uint64{100, 200}) {
		t.Errorf("sent = %v, want [100 200]", h.sender.sent)
	}
}

func TestRunCycle_EnqueuesPolledBatch(t *testing.T) {
	buf := bufferOf(t, 4)
	co2 := &fakeSensor{name: "co2", ms: []telemetry.Measurement{{Name: "co2", Value: 415}}}
	climate := &fakeSensor{name: "climate", ms: []telemetry.Measurement{
		{Name: "temperature", Value: 21.5},
		{Name: "humidity", Value: 40.2},
	}}
	h := newHarness(t, buf, co2, climate)
	h.link.connectErr = errors.New("no carrier")

	r := h.pipeline.RunCycle(context.Background())

	if !r.Enqueued || r.Measurements != 3 {
		t.Errorf("report = %+v, want 3 measurements enqueued", r)
	}
	b, ok := buf.Peek()
	if !ok {
		t.Fatal("buffer empty after cycle")
	}
	if b.Timestamp != epoch {
		t.Errorf("Timestamp = %d, want %d", b.Timestamp, epoch)
	}
	wantNames := []string{"co2", "temperature", "humidity"}
	for i, m := range b.Measurements {
		if m.Name != wantNames[i] {
			t.Errorf("measurement %d = %s, want %s", i, m.Name, wantNames[i])
		}
	}
}

func TestRunCycle_NoMeasurementsNoBatch(t *testing.T) {
	buf := bufferOf(t, 4)
	h := newHarness(t, buf, &fakeSensor{name: "dead"})

	r := h.pipeline.RunCycle(context.Background())

	if r.Enqueued || buf.Len() != 0 {
		t.Errorf("empty poll enqueued a batch: report %+v, Len %d", r, buf.Len())
	}
	if len(h.sender.sent) != 0 {
		t.Errorf("sent = %v, want nothing", h.sender.sent)
	}
	if !r.Connected {
		t.Error("link should still be brought up to drain older batches")
	}
}

func TestRunCycle_LinkFailureSkipsDelivery(t *testing.T) {
	buf := bufferOf(t, 4, 100)
	h := newHarness(t, buf, &fakeSensor{name: "co2", ms: []telemetry.Measurement{{Name: "co2", Value: 500}}})
	h.link.connectErr = errors.New("association timeout")

	r := h.pipeline.RunCycle(context.Background())

	if r.Connected || r.LinkErr == nil {
		t.Errorf("report = %+v, want link error", r)
	}
	if len(h.sender.sent) != 0 {
		t.Errorf("sent = %v, want nothing", h.sender.sent)
	}
	if r.Pending != 2 {
		t.Errorf("Pending = %d, want 2", r.Pending)
	}
	if h.link.disconnects != 0 {
		t.Errorf("disconnects = %d, want 0 after failed connect", h.link.disconnects)
	}
}

func TestRunCycle_EvictionReported(t *testing.T) {
	buf := bufferOf(t, 2, 100, 200)
	h := newHarness(t, buf, &fakeSensor{name: "co2", ms: []telemetry.Measurement{{Name: "co2", Value: 500}}})
	h.link.connectErr = errors.New("down")

	r := h.pipeline.RunCycle(context.Background())

	if !r.Evicted || r.EvictedTotal != 1 {
		t.Errorf("report = %+v, want one eviction", r)
	}
	if got := pending(buf); !equal(got, []uint64{200, epoch}) {
		t.Errorf("pending = %v, want [200 %d]", got, epoch)
	}
}

func TestRunCycle_CallOrder(t *testing.T) {
	buf := bufferOf(t, 4, 100)
	h := newHarness(t, buf)

	h.pipeline.RunCycle(context.Background())

	want := []string{"connect", "send", "observe", "disconnect"}
	got := *h.log
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if len(h.observer.reports) != 1 || h.observer.reports[0].Delivered != 1 {
		t.Errorf("observer reports = %+v", h.observer.reports)
	}
}

func TestRunCycle_Linger(t *testing.T) {
	buf := bufferOf(t, 4, 100)
	clk := newClock()
	p, err := New(Config{
		Buffer: buf,
		Link:   &fakeLink{log: &events{}},
		Sender: &fakeSender{log: &events{}},
		Linger: 5 * time.Second,
		Clock:  clk,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r := p.RunCycle(context.Background())
	if r.Duration != 5*time.Second {
		t.Errorf("Duration = %v, want 5s of linger", r.Duration)
	}
}

// TestRunCycle_DeliveryOrder runs many cycles against a flaky link and
// collector and checks that every delivered batch is newer than the last,
// and that no batch is unaccounted for.
func TestRunCycle_DeliveryOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	buf := bufferOf(t, 5)
	s := &fakeSensor{name: "co2", ms: []telemetry.Measurement{{Name: "co2", Value: 420}}}
	h := newHarness(t, buf, s)
	h.sender.fail = func(telemetry.Batch) bool { return rng.IntN(4) == 0 }

	const cycles = 200
	for i := 0; i < cycles; i++ {
		if rng.IntN(3) == 0 {
			h.link.connectErr = errors.New("down")
		} else {
			h.link.connectErr = nil
		}
		h.pipeline.RunCycle(context.Background())
		h.clock.Add(300 * time.Second)

		if buf.Len() > buf.Cap() {
			t.Fatalf("Len() = %d exceeds Cap() = %d", buf.Len(), buf.Cap())
		}
	}

	for i := 1; i < len(h.sender.sent); i++ {
		if h.sender.sent[i] <= h.sender.sent[i-1] {
			t.Fatalf("delivery out of order at %d: %v then %v", i, h.sender.sent[i-1], h.sender.sent[i])
		}
	}

	accounted := len(h.sender.sent) + buf.Len() + int(buf.Evicted())
	if accounted != cycles {
		t.Errorf("delivered %d + pending %d + evicted %d = %d, want %d",
			len(h.sender.sent), buf.Len(), buf.Evicted(), accounted, cycles)
	}
}

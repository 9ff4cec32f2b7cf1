package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/sensorlink/internal/pipeline"
)

// pruneInterval is the minimum time between two retention passes.
const pruneInterval = 24 * time.Hour

// Logger is the logging interface used by the journal.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config configures a Journal.
type Config struct {
	Repository Repository
	SiteID     string

	// Retention is how long entries are kept. Zero keeps them forever.
	Retention time.Duration

	Clock  clock.Clock
	Logger Logger
}

// Journal records cycle reports. It implements pipeline.Observer.
type Journal struct {
	repo      Repository
	siteID    string
	retention time.Duration
	clock     clock.Clock
	logger    Logger
	lastPrune time.Time
}

// New validates cfg and creates a Journal.
func New(cfg Config) (*Journal, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("%w: repository is required", ErrInvalidConfig)
	}
	if cfg.SiteID == "" {
		return nil, fmt.Errorf("%w: site id is required", ErrInvalidConfig)
	}
	if cfg.Retention < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRetention, cfg.Retention)
	}

	j := &Journal{
		repo:      cfg.Repository,
		siteID:    cfg.SiteID,
		retention: cfg.Retention,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if j.clock == nil {
		j.clock = clock.New()
	}
	if j.logger == nil {
		j.logger = noopLogger{}
	}
	return j, nil
}

// EntryFromReport converts a cycle report into a journal entry for site.
func EntryFromReport(site string, r pipeline.Report) Entry {
	e := Entry{
		SiteID:       site,
		StartedAt:    r.Started.UTC(),
		Duration:     r.Duration,
		Measurements: r.Measurements,
		Enqueued:     r.Enqueued,
		Evicted:      r.Evicted,
		EvictedTotal: r.EvictedTotal,
		Connected:    r.Connected,
		Delivered:    r.Delivered,
		Pending:      r.Pending,
	}
	if r.LinkErr != nil {
		e.LinkError = r.LinkErr.Error()
	}
	if r.SendErr != nil {
		e.SendError = r.SendErr.Error()
	}
	if r.Delivered > 0 {
		e.LastDelivered = time.Unix(int64(r.LastDelivered), 0).UTC() //nolint:gosec // unix seconds fit in int64
	}
	return e
}

// ObserveCycle writes r and prunes old entries when due. Failures are logged;
// the journal never affects delivery.
func (j *Journal) ObserveCycle(ctx context.Context, r pipeline.Report) {
	e := EntryFromReport(j.siteID, r)
	if err := j.repo.Record(ctx, &e); err != nil {
		j.logger.Warn("journal write failed", "error", err)
		return
	}
	j.logger.Debug("cycle journalled", "id", e.ID)

	if j.retention == 0 {
		return
	}
	now := j.clock.Now()
	if !j.lastPrune.IsZero() && now.Sub(j.lastPrune) < pruneInterval {
		return
	}
	if _, err := j.Prune(ctx); err != nil {
		j.logger.Warn("journal prune failed", "error", err)
	}
}

// Prune removes entries older than the retention window now.
func (j *Journal) Prune(ctx context.Context) (int64, error) {
	if j.retention <= 0 {
		return 0, ErrInvalidRetention
	}
	now := j.clock.Now()
	n, err := j.repo.Prune(ctx, now.Add(-j.retention))
	if err != nil {
		return 0, err
	}
	j.lastPrune = now
	if n > 0 {
		j.logger.Debug("journal pruned", "deleted", n, "retention", j.retention)
	}
	return n, nil
}

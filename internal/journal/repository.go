package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Entry is one journalled cycle.
type Entry struct {
	ID            int64
	SiteID        string
	StartedAt     time.Time
	Duration      time.Duration
	Measurements  int
	Enqueued      bool
	Evicted       bool
	EvictedTotal  uint64
	Connected     bool
	LinkError     string
	Delivered     int
	LastDelivered time.Time // zero when nothing was delivered
	SendError     string
	Pending       int
}

// Repository stores journal entries.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository implements Repository on the cycles table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e and sets its ID.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	var lastDelivered any
	if !e.LastDelivered.IsZero() {
		lastDelivered = e.LastDelivered.Unix()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO cycles (site_id, started_at, duration_ms, measurements, enqueued, evicted,
		                     evicted_total, connected, link_error, delivered, last_delivered, send_error, pending)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SiteID, e.StartedAt.Unix(), e.Duration.Milliseconds(), e.Measurements, e.Enqueued, e.Evicted,
		int64(e.EvictedTotal), e.Connected, nullableString(e.LinkError), //nolint:gosec // eviction counts stay far below 2^63
		e.Delivered, lastDelivered, nullableString(e.SendError), e.Pending,
	)
	if err != nil {
		return fmt.Errorf("inserting cycle: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading cycle id: %w", err)
	}
	e.ID = id
	return nil
}

// nullableString maps "" to NULL for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Recent returns up to limit entries, newest first (default 50, max 1000).
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, site_id, started_at, duration_ms, measurements, enqueued, evicted, evicted_total,
		        connected, link_error, delivered, last_delivered, send_error, pending
		 FROM cycles
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e                     Entry
			startedAt, durationMS int64
			evictedTotal          int64
			linkErr, sendErr      sql.NullString
			lastDelivered         sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.SiteID, &startedAt, &durationMS, &e.Measurements, &e.Enqueued,
			&e.Evicted, &evictedTotal, &e.Connected, &linkErr, &e.Delivered, &lastDelivered,
			&sendErr, &e.Pending); err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}

		e.StartedAt = time.Unix(startedAt, 0).UTC()
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.EvictedTotal = uint64(evictedTotal) //nolint:gosec // written from a uint64 by Record
		e.LinkError = linkErr.String
		e.SendError = sendErr.String
		if lastDelivered.Valid {
			e.LastDelivered = time.Unix(lastDelivered.Int64, 0).UTC()
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cycles: %w", err)
	}
	return entries, nil
}

// Prune deletes entries that started before the cutoff and returns how many
// were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM cycles WHERE started_at < ?", before.Unix())
	if err != nil {
		return 0, fmt.Errorf("deleting cycles: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

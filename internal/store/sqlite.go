// ABOUTME: SQLite implementation of the webhook Journal using modernc.org/sqlite
// ABOUTME: Creates its schema on open and runs in WAL mode

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
	closed atomic.Bool
}

// NewSQLiteJournal opens (or creates) the journal at path.
// Parent directories are created if needed.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	logger := slog.Default().With("component", "journal")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	j := &SQLiteJournal{db: db, logger: logger}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("webhook journal initialized", "path", path)
	return j, nil
}

func (j *SQLiteJournal) createSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS webhook_events (
			id TEXT PRIMARY KEY,
			delivery_id TEXT NOT NULL DEFAULT '',
			event TEXT NOT NULL,
			recognized INTEGER NOT NULL,
			payload TEXT NOT NULL,
			received_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_webhook_events_received
			ON webhook_events(received_at);
	`)
	return err
}

// Record inserts rec. ReceivedAt defaults to now.
func (j *SQLiteJournal) Record(ctx context.Context, rec *WebhookRecord) error {
	if j.closed.Load() {
		return ErrClosed
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now()
	}
	payload := string(rec.Payload)
	if payload == "" {
		payload = "null"
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, delivery_id, event, recognized, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.DeliveryID, rec.Event, rec.Recognized, payload, rec.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting webhook event: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]*WebhookRecord, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, delivery_id, event, recognized, payload, received_at
		FROM webhook_events
		ORDER BY received_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying webhook events: %w", err)
	}
	defer rows.Close()

	var out []*WebhookRecord
	for rows.Next() {
		var rec WebhookRecord
		var payload string
		if err := rows.Scan(&rec.ID, &rec.DeliveryID, &rec.Event, &rec.Recognized, &payload, &rec.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning webhook event: %w", err)
		}
		rec.Payload = []byte(payload)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Stats counts records per event name.
func (j *SQLiteJournal) Stats(ctx context.Context) (*JournalStats, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}

	stats := &JournalStats{ByEvent: make(map[string]int64)}

	rows, err := j.db.QueryContext(ctx, `SELECT event, COUNT(*) FROM webhook_events GROUP BY event`)
	if err != nil {
		return nil, fmt.Errorf("counting webhook events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var event string
		var n int64
		if err := rows.Scan(&event, &n); err != nil {
			return nil, fmt.Errorf("scanning event count: %w", err)
		}
		stats.ByEvent[event] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last time.Time
	err = j.db.QueryRowContext(ctx, `
		SELECT received_at FROM webhook_events ORDER BY received_at DESC LIMIT 1
	`).Scan(&last)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("reading last event time: %w", err)
	default:
		stats.LastReceivedAt = &last
	}
	return stats, nil
}

// Prune deletes records older than cutoff.
func (j *SQLiteJournal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if j.closed.Load() {
		return 0, ErrClosed
	}
	res, err := j.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE received_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning webhook events: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		j.logger.Info("pruned webhook journal", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

// Close closes the database. Later calls return ErrClosed.
func (j *SQLiteJournal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	return j.db.Close()
}

var _ Journal = (*SQLiteJournal)(nil)

// Package ledger records the outcome of every ingested file in SQLite so
// that files already appended are skipped on later runs.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingests (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	path         TEXT NOT NULL,
	checksum     TEXT NOT NULL,
	format       TEXT NOT NULL DEFAULT '',
	dataset      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	records      INTEGER NOT NULL DEFAULT 0,
	dropped      INTEGER NOT NULL DEFAULT 0,
	start_index  INTEGER NOT NULL DEFAULT 0,
	end_index    INTEGER NOT NULL DEFAULT 0,
	scan_type    TEXT NOT NULL DEFAULT '',
	first_time   TEXT NOT NULL DEFAULT '',
	last_time    TEXT NOT NULL DEFAULT '',
	processed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ingests_checksum ON ingests (checksum, status);
`

// Ledger is the SQLite backed ingest history.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Seen reports whether a file with this checksum was ingested before.
func (l *Ledger) Seen(ctx context.Context, checksum string) (bool, error) {
	var seen bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ingests WHERE checksum = ? AND status = ?)`,
		checksum, domain.StatusIngested,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return seen, nil
}

// Record stores one ingest outcome.
func (l *Ledger) Record(ctx context.Context, ev domain.IngestEvent) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO ingests (
			id, run_id, path, checksum, format, dataset, status, error,
			records, dropped, start_index, end_index, scan_type,
			first_time, last_time, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RunID, ev.Path, ev.Checksum, ev.Format, ev.Dataset, ev.Status, ev.Error,
		ev.Records, ev.Dropped, ev.Start, ev.End, ev.ScanType,
		formatTime(ev.FirstTime), formatTime(ev.LastTime), formatTime(ev.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", ev.Path, err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.IngestEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, path, checksum, format, dataset, status, error,
		       records, dropped, start_index, end_index, scan_type,
		       first_time, last_time, processed_at
		FROM ingests
		ORDER BY processed_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var events []domain.IngestEvent
	for rows.Next() {
		var ev domain.IngestEvent
		var first, last, processed string
		err := rows.Scan(
			&ev.ID, &ev.RunID, &ev.Path, &ev.Checksum, &ev.Format, &ev.Dataset, &ev.Status, &ev.Error,
			&ev.Records, &ev.Dropped, &ev.Start, &ev.End, &ev.ScanType,
			&first, &last, &processed,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		ev.FirstTime = parseTime(first)
		ev.LastTime = parseTime(last)
		ev.ProcessedAt = parseTime(processed)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CheckReadiness verifies the database is reachable.
func (l *Ledger) CheckReadiness(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

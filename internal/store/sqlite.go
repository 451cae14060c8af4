package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/feedbackops/kbsync/internal/types"
)

// SQLiteStore implements Store over an embedded SQLite database opened in WAL
// mode. WAL plus a busy timeout keeps a concurrent status query readable
// while a run writes, but the design assumes a single process and one run at
// a time; cross-process locking is not attempted.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS published_tickets (
	ticket_key       TEXT PRIMARY KEY,
	descendant_count INTEGER NOT NULL DEFAULT 0,
	fingerprint      TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending',
	remote_id        TEXT NOT NULL DEFAULT '',
	updated_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_published_status ON published_tickets(status);

CREATE TABLE IF NOT EXISTS run_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	mode        TEXT NOT NULL,
	target_size INTEGER NOT NULL,
	processed   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	duration    TEXT NOT NULL
);
`

// OpenSQLite opens (creating if necessary) the tracking database at path.
// The caller must Close the returned store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create db directory: %v", ErrStore, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStore, path, err)
	}

	// One writer at a time; the engine is sequential anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %v", ErrStore, err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) ListPublished(ctx context.Context) ([]types.PublishedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticket_key, descendant_count, fingerprint, status, remote_id, updated_at
		FROM published_tickets ORDER BY ticket_key`)
	if err != nil {
		return nil, fmt.Errorf("%w: list published: %v", ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	var records []types.PublishedRecord
	for rows.Next() {
		var rec types.PublishedRecord
		var status string
		if err := rows.Scan(&rec.Key, &rec.DescendantCount, &rec.Fingerprint, &status, &rec.RemoteID, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan published record: %v", ErrStore, err)
		}
		rec.Status = types.PublishStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list published: %v", ErrStore, err)
	}
	return records, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*types.PublishedRecord, error) {
	var rec types.PublishedRecord
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT ticket_key, descendant_count, fingerprint, status, remote_id, updated_at
		FROM published_tickets WHERE ticket_key = ?`, key).
		Scan(&rec.Key, &rec.DescendantCount, &rec.Fingerprint, &status, &rec.RemoteID, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStore, key, err)
	}
	rec.Status = types.PublishStatus(status)
	return &rec, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec types.PublishedRecord) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("invalid publish status %q", rec.Status)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO published_tickets (ticket_key, descendant_count, fingerprint, status, remote_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticket_key) DO UPDATE SET
			descendant_count = excluded.descendant_count,
			fingerprint      = excluded.fingerprint,
			status           = excluded.status,
			remote_id        = excluded.remote_id,
			updated_at       = excluded.updated_at`,
		rec.Key, rec.DescendantCount, rec.Fingerprint, string(rec.Status), rec.RemoteID, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrStore, rec.Key, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM published_tickets WHERE ticket_key = ?`, key); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrStore, key, err)
	}
	return nil
}

func (s *SQLiteStore) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM published_tickets`); err != nil {
		return fmt.Errorf("%w: purge published tickets: %v", ErrStore, err)
	}
	return nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run types.RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_log (mode, target_size, processed, failed, started_at, duration)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(run.Mode), run.TargetSize, run.Processed, run.Failed, run.StartedAt, run.Duration)
	if err != nil {
		return fmt.Errorf("%w: record run: %v", ErrStore, err)
	}
	return nil
}

func (s *SQLiteStore) LastRun(ctx context.Context) (*types.RunSummary, error) {
	var run types.RunSummary
	var mode string
	err := s.db.QueryRowContext(ctx, `
		SELECT mode, target_size, processed, failed, started_at, duration
		FROM run_log ORDER BY id DESC LIMIT 1`).
		Scan(&mode, &run.TargetSize, &run.Processed, &run.Failed, &run.StartedAt, &run.Duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: last run: %v", ErrStore, err)
	}
	run.Mode = types.Mode(mode)
	return &run, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

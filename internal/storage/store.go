// Package storage keeps a registry of replicate runs in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

type RunRecord struct {
	ID         string
	Batch      string
	Label      string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	Runtime    time.Duration
	Intervals  int
	Error      string
}

type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	batch       TEXT NOT NULL,
	label       TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	runtime_ms  INTEGER,
	intervals   INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS runs_batch ON runs (batch, label)`,
}

// Open opens or creates the registry at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// replicates finish concurrently; one connection serialises the writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create runs table: %w", err)
		}
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewBatch returns a fresh identifier grouping the runs of one launch.
func NewBatch() string { return uuid.NewString() }

// Begin records a running replicate and returns its run ID.
func (s *Store) Begin(ctx context.Context, batch, label string, intervals int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, batch, label, status, started_at, intervals)
VALUES (?, ?, ?, ?, ?, ?)`,
		id, batch, label, string(StatusRunning), s.now().UTC().UnixMilli(), intervals,
	)
	if err != nil {
		return "", fmt.Errorf("begin run %s: %w", label, err)
	}
	return id, nil
}

// Finish marks a run done, or failed when runErr is non-nil.
func (s *Store) Finish(ctx context.Context, id string, runErr error) error {
	status, msg := StatusDone, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	finished := s.now().UTC().UnixMilli()

	res, err := s.db.ExecContext(ctx, `
UPDATE runs
SET status = ?, finished_at = ?, runtime_ms = ? - started_at, error = ?
WHERE id = ?`,
		string(status), finished, finished, msg, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const selectRuns = `
SELECT id, batch, label, status, started_at, finished_at, runtime_ms, intervals, error
FROM runs`

// List returns the runs of batch, or of every batch when batch is empty,
// oldest first.
func (s *Store) List(ctx context.Context, batch string) ([]RunRecord, error) {
	query := selectRuns + ` ORDER BY started_at, CAST(label AS INTEGER), label`
	args := []any{}
	if batch != "" {
		query = selectRuns + ` WHERE batch = ? ORDER BY started_at, CAST(label AS INTEGER), label`
		args = append(args, batch)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]RunRecord, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (s *Store) Load(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestBatch returns the batch of the most recently started run.
func (s *Store) LatestBatch(ctx context.Context) (string, error) {
	var batch string
	err := s.db.QueryRowContext(ctx, `SELECT batch FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&batch)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest batch: %w", err)
	}
	return batch, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		r         RunRecord
		status    string
		started   int64
		finished  sql.NullInt64
		runtimeMs sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Batch, &r.Label, &status, &started, &finished, &runtimeMs, &r.Intervals, &r.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan run: %w", err)
	}
	r.Status = Status(status)
	r.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
	}
	if runtimeMs.Valid {
		r.Runtime = time.Duration(runtimeMs.Int64) * time.Millisecond
	}
	return r, nil
}

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ucli-tools/registry/internal/reconcile"
	"github.com/ucli-tools/registry/internal/report"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound indicates the run ID doesn't exist
var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed-width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// NewRunID generates a new unique run ID using UUID v4
func NewRunID() string {
	return uuid.New().String()
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	registry_path TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL,
	mode          TEXT NOT NULL,
	checked       INTEGER NOT NULL,
	updated       INTEGER NOT NULL,
	unchanged     INTEGER NOT NULL,
	skipped       INTEGER NOT NULL,
	failed        INTEGER NOT NULL,
	saved         INTEGER NOT NULL,
	error         TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position         INTEGER NOT NULL,
	name             TEXT NOT NULL,
	repo             TEXT NOT NULL,
	status           TEXT NOT NULL,
	reason           TEXT NOT NULL,
	previous_version TEXT NOT NULL,
	version          TEXT NOT NULL,
	error            TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// Run is one recorded updater run
type Run struct {
	ID           string              `json:"id"`
	RegistryPath string              `json:"registry_path"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Summary      report.Summary      `json:"summary"`
	Error        string              `json:"error,omitempty"` // document-level failure, if any
	Outcomes     []reconcile.Outcome `json:"outcomes,omitempty"`
}

// Store is a sqlite-backed log of updater runs
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a run and its outcomes in a single transaction
func (s *Store) Record(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sum := run.Summary
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, registry_path, started_at, finished_at, mode,
			checked, updated, unchanged, skipped, failed, saved, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RegistryPath,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		sum.Mode, sum.Checked, sum.Updated, sum.Unchanged, sum.Skipped, sum.Failed,
		boolToInt(sum.Saved), run.Error,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, o := range run.Outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outcomes (run_id, position, name, repo, status, reason,
				previous_version, version, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, o.Name, o.Repo, string(o.Status), o.Reason,
			o.PreviousVersion, o.Version, errText,
		); err != nil {
			return fmt.Errorf("failed to insert outcome %q: %w", o.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first, without outcomes
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, registry_path, started_at, finished_at, mode,
			checked, updated, unchanged, skipped, failed, saved, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// Get returns one run with its outcomes
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, registry_path, started_at, finished_at, mode,
			checked, updated, unchanged, skipped, failed, saved, error
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, repo, status, reason, previous_version, version, error
		FROM outcomes WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o reconcile.Outcome
		var status, errText string
		if err := rows.Scan(&o.Name, &o.Repo, &status, &o.Reason, &o.PreviousVersion, &o.Version, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Status = reconcile.Status(status)
		if errText != "" {
			o.Err = errors.New(errText)
		}
		run.Outcomes = append(run.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outcomes: %w", err)
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var started, finished string
	var saved int
	sum := &run.Summary
	if err := sc.Scan(&run.ID, &run.RegistryPath, &started, &finished, &sum.Mode,
		&sum.Checked, &sum.Updated, &sum.Unchanged, &sum.Skipped, &sum.Failed, &saved, &run.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", started, err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return nil, fmt.Errorf("invalid finished_at %q: %w", finished, err)
	}
	sum.RunID = run.ID
	sum.DryRun = sum.Mode == report.ModeDryRun
	sum.Saved = saved != 0
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

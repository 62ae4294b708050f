package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"speech-compliance-go/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// Store remembers per-locator outcomes so a rerun can skip finished items.
type Store interface {
	Done(ctx context.Context, locator string) (bool, error)
	MarkSucceeded(ctx context.Context, res types.ItemResult) error
	MarkFailed(ctx context.Context, res types.ItemResult) error
}

// Entry is one row of processed_items.
type Entry struct {
	Locator    string
	ItemID     string
	Status     types.ItemStatus
	Violations int
	Attempts   int
	Error      string
	UpdatedAt  time.Time
}

// DB is the sqlite-backed Store.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*DB)(nil)

// Open connects to the database file and initializes the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

func (s *DB) Close() error {
	return s.db.Close()
}

// Done reports whether the locator finished successfully in an earlier run.
func (s *DB) Done(ctx context.Context, locator string) (bool, error) {
	e, err := s.Get(ctx, locator)
	if err != nil {
		return false, err
	}
	return e != nil && e.Status == types.StatusSucceeded, nil
}

func (s *DB) MarkSucceeded(ctx context.Context, res types.ItemResult) error {
	return s.upsert(ctx, res, types.StatusSucceeded, "")
}

func (s *DB) MarkFailed(ctx context.Context, res types.ItemResult) error {
	return s.upsert(ctx, res, types.StatusFailed, res.Error)
}

const upsertSQL = `
INSERT INTO processed_items (locator, item_id, status, violations, attempts, error, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(locator) DO UPDATE SET
    item_id = excluded.item_id,
    status = excluded.status,
    violations = excluded.violations,
    attempts = processed_items.attempts + excluded.attempts,
    error = excluded.error,
    updated_at = excluded.updated_at`

func (s *DB) upsert(ctx context.Context, res types.ItemResult, status types.ItemStatus, errText string) error {
	_, err := s.db.ExecContext(ctx, upsertSQL,
		res.Item.Locator, res.ItemID, string(status), res.Violations, res.Attempts, errText, s.now().UTC())
	if err != nil {
		return fmt.Errorf("record %s for %s: %w", status, res.Item.Locator, err)
	}
	return nil
}

// Get returns the entry for a locator, or nil when it was never recorded.
func (s *DB) Get(ctx context.Context, locator string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT locator, item_id, status, violations, attempts, error, updated_at
FROM processed_items WHERE locator = ?`, locator)
	var e Entry
	var status string
	err := row.Scan(&e.Locator, &e.ItemID, &status, &e.Violations, &e.Attempts, &e.Error, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", locator, err)
	}
	e.Status = types.ItemStatus(status)
	return &e, nil
}

// List returns entries with the given status, newest first; an empty status lists all.
func (s *DB) List(ctx context.Context, status types.ItemStatus) ([]Entry, error) {
	query := `SELECT locator, item_id, status, violations, attempts, error, updated_at FROM processed_items`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC, locator`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list processed items: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var st string
		if err := rows.Scan(&e.Locator, &e.ItemID, &st, &e.Violations, &e.Attempts, &e.Error, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Status = types.ItemStatus(st)
		out = append(out, e)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ultralytics/stars/internal/model"
)

// SQLiteStore keeps run history in a local SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dbPath and its tables
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// a single writer avoids "database is locked" on concurrent statements
	db.SetMaxOpenConns(1)

	// Create tables if not exists
	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		org TEXT,
		status TEXT,
		metrics TEXT,
		summary TEXT,
		started_at DATETIME,
		ended_at DATETIME
	);
	`
	errorTable := `
	CREATE TABLE IF NOT EXISTS run_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		source TEXT,
		error_message TEXT,
		created_at DATETIME
	);
	`
	snapshotTable := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		source TEXT,
		payload TEXT,
		created_at DATETIME
	);
	`
	for _, stmt := range []string{runTable, errorTable, snapshotTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

func encodeRun(run model.RunRecord) (metrics []byte, summary []byte, err error) {
	if metrics, err = json.Marshal(run.Metrics); err != nil {
		return nil, nil, err
	}
	if run.Summary != nil {
		if summary, err = json.Marshal(run.Summary); err != nil {
			return nil, nil, err
		}
	}
	return metrics, summary, nil
}

func decodeRun(run *model.RunRecord, metrics, summary []byte) error {
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &run.Metrics); err != nil {
			return fmt.Errorf("run %s metrics: %w", run.ID, err)
		}
	}
	if len(summary) > 0 {
		run.Summary = &model.Summary{}
		if err := json.Unmarshal(summary, run.Summary); err != nil {
			return fmt.Errorf("run %s summary: %w", run.ID, err)
		}
	}
	return nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// SaveRun stores a new run
func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	metrics, summary, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, org, status, metrics, summary, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Org, run.Status, string(metrics), nullString(summary), run.StartedAt.UTC(), utcPtr(run.EndedAt))
	return err
}

// UpdateRun updates status, metrics, summary and end time of a run
func (s *SQLiteStore) UpdateRun(ctx context.Context, run model.RunRecord) error {
	metrics, summary, err := encodeRun(run)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, metrics = ?, summary = ?, ended_at = ? WHERE id = ?`,
		run.Status, string(metrics), nullString(summary), utcPtr(run.EndedAt), run.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// SaveRunError records a source failure for a run
func (s *SQLiteStore) SaveRunError(ctx context.Context, e model.ErrorDetail) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_errors (run_id, source, error_message, created_at) VALUES (?, ?, ?, ?)`,
		e.RunID, e.Source, e.Message, e.Timestamp.UTC())
	return err
}

// SaveSnapshot stores the JSON document a source produced during a run
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, runID, source string, payload []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, source, payload, created_at) VALUES (?, ?, ?, ?)`,
		runID, source, string(payload), at.UTC())
	return err
}

// ListRuns returns the most recent runs first; limit <= 0 means all
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org, status, metrics, summary, started_at, ended_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun fetches one run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, org, status, metrics, summary, started_at, ended_at FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// RunErrors lists the errors recorded for a run, oldest first
func (s *SQLiteStore) RunErrors(ctx context.Context, runID string) ([]model.ErrorDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, source, error_message, created_at FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errs []model.ErrorDetail
	for rows.Next() {
		var e model.ErrorDetail
		if err := rows.Scan(&e.RunID, &e.Source, &e.Message, &e.Timestamp); err != nil {
			return nil, err
		}
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.RunRecord, error) {
	var (
		run     model.RunRecord
		metrics sql.NullString
		summary sql.NullString
		ended   sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.Org, &run.Status, &metrics, &summary, &run.StartedAt, &ended); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		run.EndedAt = &t
	}
	if err := decodeRun(&run, []byte(metrics.String), []byte(summary.String)); err != nil {
		return nil, err
	}
	return &run, nil
}

func nullString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

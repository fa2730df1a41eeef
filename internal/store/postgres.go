package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ultralytics/stars/internal/model"
)

// PostgresStore keeps run history in Postgres
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS orgstats_runs (
	id TEXT PRIMARY KEY,
	org TEXT NOT NULL,
	status TEXT NOT NULL,
	metrics JSONB,
	summary JSONB,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS orgstats_run_errors (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	source TEXT NOT NULL,
	error_message TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS orgstats_snapshots (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	source TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`

// OpenPostgres connects to dsn and creates the history tables
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("PG_DSN parse: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("PG connect: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PG schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	metrics, summary, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO orgstats_runs (id, org, status, metrics, summary, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		run.ID, run.Org, run.Status, metrics, summary, run.StartedAt, run.EndedAt)
	return err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run model.RunRecord) error {
	metrics, summary, err := encodeRun(run)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE orgstats_runs SET status = $1, metrics = $2, summary = $3, ended_at = $4 WHERE id = $5`,
		run.Status, metrics, summary, run.EndedAt, run.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

func (s *PostgresStore) SaveRunError(ctx context.Context, e model.ErrorDetail) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orgstats_run_errors (run_id, source, error_message, created_at) VALUES ($1, $2, $3, $4)`,
		e.RunID, e.Source, e.Message, e.Timestamp)
	return err
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, runID, source string, payload []byte, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orgstats_snapshots (run_id, source, payload, created_at) VALUES ($1, $2, $3, $4)`,
		runID, source, payload, at)
	return err
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	query := `SELECT id, org, status, metrics, summary, started_at, ended_at FROM orgstats_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, org, status, metrics, summary, started_at, ended_at FROM orgstats_runs WHERE id = $1`, runID)
	run, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

func (s *PostgresStore) RunErrors(ctx context.Context, runID string) ([]model.ErrorDetail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, source, error_message, created_at FROM orgstats_run_errors WHERE run_id = $1 ORDER BY id`, runID)
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

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgRun(row pgx.Row) (*model.RunRecord, error) {
	var (
		run     model.RunRecord
		metrics []byte
		summary []byte
	)
	if err := row.Scan(&run.ID, &run.Org, &run.Status, &metrics, &summary, &run.StartedAt, &run.EndedAt); err != nil {
		return nil, err
	}
	if err := decodeRun(&run, metrics, summary); err != nil {
		return nil, err
	}
	return &run, nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/ultralytics/stars/internal/model"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID
var ErrRunNotFound = errors.New("run not found")

// History persists collection runs, their errors and the snapshots they wrote
type History interface {
	SaveRun(ctx context.Context, run model.RunRecord) error
	UpdateRun(ctx context.Context, run model.RunRecord) error
	SaveRunError(ctx context.Context, e model.ErrorDetail) error
	SaveSnapshot(ctx context.Context, runID, source string, payload []byte, at time.Time) error
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	GetRun(ctx context.Context, runID string) (*model.RunRecord, error)
	RunErrors(ctx context.Context, runID string) ([]model.ErrorDetail, error)
	Close() error
}

// Config selects the history backend
type Config struct {
	SQLitePath  string
	PostgresDSN string
	MaxConns    int
}

// Open returns the configured backend. A Postgres DSN wins over a SQLite
// path; with neither set it returns nil and history is disabled.
func Open(ctx context.Context, cfg Config) (History, error) {
	switch {
	case cfg.PostgresDSN != "":
		pg, err := OpenPostgres(ctx, cfg.PostgresDSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case cfg.SQLitePath != "":
		lite, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, nil
	}
}

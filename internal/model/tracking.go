package model

import "time"

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// SourceMetrics records how one source fared during a run
type SourceMetrics struct {
	Source   string        `json:"source"`
	Status   string        `json:"status"` // "completed", "failed", "skipped"
	Duration time.Duration `json:"duration"`
	Records  int           `json:"records"`
	Restored int           `json:"restored"` // fields kept from the previous snapshot
	Error    string        `json:"error,omitempty"`
}

// RunMetrics is the per-run bookkeeping persisted alongside the run record
type RunMetrics struct {
	Sources  map[string]SourceMetrics `json:"sources"`
	Restored int                      `json:"restored"`
	Errors   int                      `json:"errors"`
}

// RunRecord is one row of the collection history
type RunRecord struct {
	ID        string     `json:"id"`
	Org       string     `json:"org"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Metrics   RunMetrics `json:"metrics"`
	Summary   *Summary   `json:"summary,omitempty"`
}

// ErrorDetail is a source failure captured during a run
type ErrorDetail struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

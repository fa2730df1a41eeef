package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/internal/store"
)

const historyWriteTimeout = 10 * time.Second

// RunTracker records per-source metrics for one collection run and mirrors
// them into the run history when one is configured. History failures are
// logged and never fail the run. A nil tracker is a no-op.
type RunTracker struct {
	mu      sync.Mutex
	history store.History
	log     *zap.Logger
	now     func() time.Time

	run     model.RunRecord
	started map[string]time.Time
}

// NewRunTracker starts tracking a run with a fresh ID
func NewRunTracker(ctx context.Context, history store.History, org string, log *zap.Logger, now func() time.Time) *RunTracker {
	if now == nil {
		now = time.Now
	}
	t := &RunTracker{
		history: history,
		log:     log,
		now:     now,
		started: make(map[string]time.Time),
		run: model.RunRecord{
			ID:        uuid.New().String(),
			Org:       org,
			Status:    model.RunStatusRunning,
			StartedAt: now().UTC(),
			Metrics:   model.RunMetrics{Sources: make(map[string]model.SourceMetrics)},
		},
	}
	if history != nil {
		if err := history.SaveRun(ctx, t.run); err != nil {
			log.Warn("failed to save run", zap.String("run_id", t.run.ID), zap.Error(err))
		}
	}
	return t
}

// RunID returns the run identifier, or "" for a nil tracker
func (t *RunTracker) RunID() string {
	if t == nil {
		return ""
	}
	return t.run.ID
}

// StartSource marks the start of a source
func (t *RunTracker) StartSource(source string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.started[source] = t.now()
	m := t.run.Metrics.Sources[source]
	m.Source = source
	m.Status = model.RunStatusRunning
	t.run.Metrics.Sources[source] = m
}

// EndSource marks a source as completed, or failed when err is non-nil
func (t *RunTracker) EndSource(source string, records int, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.run.Metrics.Sources[source]
	m.Source = source
	m.Records = records
	if start, ok := t.started[source]; ok {
		m.Duration = t.now().Sub(start)
	}
	if err != nil {
		m.Status = model.RunStatusFailed
		m.Error = err.Error()
	} else {
		m.Status = model.RunStatusCompleted
	}
	t.run.Metrics.Sources[source] = m

	t.log.Debug("source finished",
		zap.String("source", source),
		zap.String("status", m.Status),
		zap.Int("records", records),
		zap.Duration("duration", m.Duration))
}

// SkipSource marks a source as not configured for this run
func (t *RunTracker) SkipSource(source string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.run.Metrics.Sources[source] = model.SourceMetrics{Source: source, Status: "skipped"}
	t.log.Info("source skipped", zap.String("source", source))
}

// AddRestored counts fields kept from the previous snapshot
func (t *RunTracker) AddRestored(source string, n int) {
	if t == nil || n == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.run.Metrics.Sources[source]
	m.Source = source
	m.Restored += n
	t.run.Metrics.Sources[source] = m
	t.run.Metrics.Restored += n
}

// RecordError counts a non-fatal source failure and stores it in history
func (t *RunTracker) RecordError(ctx context.Context, source string, err error) {
	if t == nil || err == nil {
		return
	}
	t.mu.Lock()
	t.run.Metrics.Errors++
	detail := model.ErrorDetail{
		RunID:     t.run.ID,
		Source:    source,
		Message:   err.Error(),
		Timestamp: t.now().UTC(),
	}
	t.mu.Unlock()

	t.saveError(ctx, detail)
}

// SaveSnapshot stores the document a source produced
func (t *RunTracker) SaveSnapshot(ctx context.Context, source string, doc any) {
	if t == nil || t.history == nil {
		return
	}
	payload, err := EncodeJSON(doc)
	if err != nil {
		t.log.Warn("failed to encode snapshot", zap.String("source", source), zap.Error(err))
		return
	}
	if err := t.history.SaveSnapshot(ctx, t.run.ID, source, payload, t.now().UTC()); err != nil {
		t.log.Warn("failed to save snapshot", zap.String("source", source), zap.Error(err))
	}
}

// Complete marks the run as completed with its summary
func (t *RunTracker) Complete(ctx context.Context, summary *model.Summary) {
	if t == nil {
		return
	}
	t.finish(ctx, model.RunStatusCompleted, summary, nil)
}

// Fail marks the run as failed
func (t *RunTracker) Fail(ctx context.Context, err error) {
	if t == nil {
		return
	}
	t.finish(ctx, model.RunStatusFailed, nil, err)
}

func (t *RunTracker) finish(ctx context.Context, status string, summary *model.Summary, cause error) {
	// a cancelled run must still be closed out in history
	ctx, cancel := detached(ctx)
	defer cancel()

	t.mu.Lock()
	if t.run.EndedAt != nil {
		t.mu.Unlock()
		return
	}
	end := t.now().UTC()
	t.run.EndedAt = &end
	t.run.Status = status
	t.run.Summary = summary
	if cause != nil {
		t.run.Metrics.Errors++
	}
	run := t.snapshot()
	t.mu.Unlock()

	if cause != nil {
		t.saveError(ctx, model.ErrorDetail{RunID: run.ID, Source: "run", Message: cause.Error(), Timestamp: end})
	}
	if t.history == nil {
		return
	}
	if err := t.history.UpdateRun(ctx, run); err != nil {
		t.log.Warn("failed to update run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (t *RunTracker) saveError(ctx context.Context, detail model.ErrorDetail) {
	if t.history == nil {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := t.history.SaveRunError(ctx, detail); err != nil {
		t.log.Warn("failed to save run error", zap.String("run_id", detail.RunID), zap.Error(err))
	}
}

// detached keeps ctx values but drops its cancellation, bounded by historyWriteTimeout
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
}

// Metrics returns a copy of the current run metrics
func (t *RunTracker) Metrics() model.RunMetrics {
	if t == nil {
		return model.RunMetrics{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot().Metrics
}

// Record returns a copy of the current run record
func (t *RunTracker) Record() model.RunRecord {
	if t == nil {
		return model.RunRecord{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// snapshot copies the run; callers hold mu
func (t *RunTracker) snapshot() model.RunRecord {
	run := t.run
	run.Metrics.Sources = make(map[string]model.SourceMetrics, len(t.run.Metrics.Sources))
	for k, v := range t.run.Metrics.Sources {
		run.Metrics.Sources[k] = v
	}
	return run
}

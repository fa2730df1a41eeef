package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/internal/store"
	"github.com/ultralytics/stars/pkg/utils"
)

// Source names used in run tracking and history
const (
	SourceGitHub    = "github"
	SourcePyPI      = "pypi"
	SourceAnalytics = "analytics"
	SourceReddit    = "reddit"
	SourceSummary   = "summary"
)

// Options configures a Collector
type Options struct {
	Spec      model.CollectSpec
	Client    *Client
	Endpoints model.Endpoints
	Pacing    model.Pacing
	Output    *utils.OutputManager
	History   store.History // optional run history
	Logger    *zap.Logger

	// NewReportRunner overrides the Google Analytics client constructor
	NewReportRunner ReportRunnerFactory
}

// Collector polls the upstream APIs and maintains the JSON snapshots
type Collector struct {
	spec            model.CollectSpec
	client          *Client
	endpoints       model.Endpoints
	pacing          model.Pacing
	out             *utils.OutputManager
	history         store.History
	log             *zap.Logger
	newReportRunner ReportRunnerFactory

	tracker *RunTracker
	exports []model.ExportResult

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCollector creates a collector; zero-valued options fall back to defaults
func NewCollector(opts Options) *Collector {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	client := opts.Client
	if client == nil {
		client = NewClient(ClientOptions{}, log)
	}
	endpoints := opts.Endpoints
	if endpoints.GitHub == "" {
		endpoints.GitHub = model.DefaultEndpoints.GitHub
	}
	if endpoints.PyPIStats == "" {
		endpoints.PyPIStats = model.DefaultEndpoints.PyPIStats
	}
	if endpoints.Pepy == "" {
		endpoints.Pepy = model.DefaultEndpoints.Pepy
	}
	if endpoints.Shields == "" {
		endpoints.Shields = model.DefaultEndpoints.Shields
	}
	out := opts.Output
	if out == nil {
		out = utils.NewOutputManager("")
	}
	factory := opts.NewReportRunner
	if factory == nil {
		factory = NewAnalyticsRunner
	}
	return &Collector{
		spec:            opts.Spec,
		client:          client,
		endpoints:       endpoints,
		pacing:          opts.Pacing,
		out:             out,
		history:         opts.History,
		log:             log,
		newReportRunner: factory,
		now:             time.Now,
		sleep:           sleepContext,
	}
}

// Report is everything one collection run produced
type Report struct {
	RunID     string
	GitHub    *model.GitHubStats
	PyPI      *model.PyPIStats
	Analytics *model.AnalyticsStats // nil when not configured or unavailable
	Reddit    *model.RedditStats
	Summary   *model.Summary
	Metrics   model.RunMetrics
	Exports   []model.ExportResult
}

// export writes a snapshot and remembers the outcome for the report
func (c *Collector) export(path string, v any, records int) error {
	result, err := exportJSON(path, v, records)
	c.exports = append(c.exports, result)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	c.log.Debug("snapshot written", zap.String("path", path), zap.Int("records", records))
	return nil
}

// Run polls every configured source in turn and writes the snapshots.
// GitHub failures abort the run; the other sources degrade to their previous
// values.
func (c *Collector) Run(ctx context.Context) (report *Report, err error) {
	if c.spec.GitHubToken == "" {
		return nil, ErrMissingToken
	}
	start := c.now()
	c.exports = nil
	c.tracker = NewRunTracker(ctx, c.history, c.spec.Org, c.log, c.now)
	defer func() {
		if err != nil {
			c.tracker.Fail(ctx, err)
		}
		c.tracker = nil
	}()

	c.log.Info("starting collection",
		zap.String("run_id", c.tracker.RunID()),
		zap.String("org", c.spec.Org))

	if err := c.out.EnsureOutputDirExists(); err != nil {
		return nil, err
	}
	report = &Report{RunID: c.tracker.RunID()}

	// --- GITHUB ---
	c.tracker.StartSource(SourceGitHub)
	report.GitHub, err = c.CollectGitHub(ctx)
	if err != nil {
		c.tracker.EndSource(SourceGitHub, 0, err)
		return nil, fmt.Errorf("github: %w", err)
	}
	c.tracker.EndSource(SourceGitHub, len(report.GitHub.Repos), nil)
	c.tracker.SaveSnapshot(ctx, SourceGitHub, report.GitHub)

	// --- PYPI ---
	c.tracker.StartSource(SourcePyPI)
	report.PyPI, err = c.CollectPyPI(ctx)
	if err != nil {
		c.tracker.EndSource(SourcePyPI, 0, err)
		return nil, fmt.Errorf("pypi: %w", err)
	}
	c.tracker.EndSource(SourcePyPI, len(report.PyPI.Packages), nil)
	c.tracker.SaveSnapshot(ctx, SourcePyPI, report.PyPI)

	// --- GOOGLE ANALYTICS ---
	if c.spec.AnalyticsCredentials != "" {
		c.tracker.StartSource(SourceAnalytics)
		report.Analytics = c.CollectAnalytics(ctx)
		if report.Analytics != nil {
			c.tracker.EndSource(SourceAnalytics, len(report.Analytics.Periods), nil)
			c.tracker.SaveSnapshot(ctx, SourceAnalytics, report.Analytics)
		} else {
			c.tracker.EndSource(SourceAnalytics, 0, fmt.Errorf("no analytics data available"))
		}
	} else {
		c.tracker.SkipSource(SourceAnalytics)
	}

	// --- REDDIT ---
	c.tracker.StartSource(SourceReddit)
	report.Reddit, err = c.CollectReddit(ctx)
	if err != nil {
		c.tracker.EndSource(SourceReddit, 0, err)
		return nil, fmt.Errorf("reddit: %w", err)
	}
	c.tracker.EndSource(SourceReddit, 1, nil)
	c.tracker.SaveSnapshot(ctx, SourceReddit, report.Reddit)

	// --- SUMMARY ---
	c.tracker.StartSource(SourceSummary)
	report.Summary, err = c.CollectSummary(report.GitHub, report.PyPI, report.Analytics, report.Reddit)
	if err != nil {
		c.tracker.EndSource(SourceSummary, 0, err)
		return nil, fmt.Errorf("summary: %w", err)
	}
	c.tracker.EndSource(SourceSummary, 1, nil)
	c.tracker.SaveSnapshot(ctx, SourceSummary, report.Summary)

	c.tracker.Complete(ctx, report.Summary)
	report.Metrics = c.tracker.Metrics()
	report.Exports = c.exports

	c.log.Info("collection completed",
		zap.String("run_id", report.RunID),
		zap.Duration("duration", c.now().Sub(start)),
		zap.Int("restored_fields", report.Metrics.Restored),
		zap.Int("errors", report.Metrics.Errors))
	return report, nil
}

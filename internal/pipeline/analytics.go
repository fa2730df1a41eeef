package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"

	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/pkg/utils"
)

// analyticsMetrics are requested in this order for every period
var analyticsMetrics = []string{"activeUsers", "sessions", "eventCount", "averageSessionDuration"}

// analyticsPeriods are the trailing windows reported, in days
var analyticsPeriods = []struct {
	days   int
	suffix string
}{
	{1, "1d"},
	{7, "7d"},
	{30, "30d"},
	{90, "90d"},
	{365, "365d"},
}

// ReportRunner runs one Google Analytics report over the trailing window
// "{days}daysAgo".."today" and returns the metric values of the first row,
// or nil when the report has no rows.
type ReportRunner interface {
	RunReport(ctx context.Context, propertyID string, days int, metrics []string) ([]string, error)
}

// ReportRunnerFactory builds a ReportRunner from service account JSON
type ReportRunnerFactory func(ctx context.Context, credentialsJSON string) (ReportRunner, error)

type dataAPIRunner struct {
	svc *analyticsdata.Service
}

// NewAnalyticsRunner creates a Google Analytics Data API client from
// service account credentials.
func NewAnalyticsRunner(ctx context.Context, credentialsJSON string) (ReportRunner, error) {
	if !json.Valid([]byte(credentialsJSON)) {
		return nil, fmt.Errorf("analytics credentials are not valid JSON")
	}
	svc, err := analyticsdata.NewService(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics client: %w", err)
	}
	return &dataAPIRunner{svc: svc}, nil
}

func (r *dataAPIRunner) RunReport(ctx context.Context, propertyID string, days int, metrics []string) ([]string, error) {
	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{
			{StartDate: fmt.Sprintf("%ddaysAgo", days), EndDate: "today"},
		},
	}
	for _, m := range metrics {
		req.Metrics = append(req.Metrics, &analyticsdata.Metric{Name: m})
	}
	resp, err := r.svc.Properties.RunReport("properties/"+propertyID, req).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Rows) == 0 {
		return nil, nil
	}
	row := resp.Rows[0]
	values := make([]string, 0, len(row.MetricValues))
	for _, mv := range row.MetricValues {
		values = append(values, mv.Value)
	}
	return values, nil
}

// periodFromValues converts one report row into PeriodStats
func periodFromValues(values []string) (model.PeriodStats, error) {
	var p model.PeriodStats
	if values == nil {
		return p, nil
	}
	if len(values) < len(analyticsMetrics) {
		return p, fmt.Errorf("report row has %d metric values, want %d", len(values), len(analyticsMetrics))
	}
	var err error
	if p.ActiveUsers, err = strconv.ParseInt(values[0], 10, 64); err != nil {
		return p, fmt.Errorf("activeUsers: %w", err)
	}
	if p.Sessions, err = strconv.ParseInt(values[1], 10, 64); err != nil {
		return p, fmt.Errorf("sessions: %w", err)
	}
	if p.Events, err = strconv.ParseInt(values[2], 10, 64); err != nil {
		return p, fmt.Errorf("eventCount: %w", err)
	}
	if p.AvgSessionDuration, err = strconv.ParseFloat(values[3], 64); err != nil {
		return p, fmt.Errorf("averageSessionDuration: %w", err)
	}
	return p, nil
}

func (c *Collector) fetchAnalytics(ctx context.Context) (*model.AnalyticsStats, error) {
	runner, err := c.newReportRunner(ctx, c.spec.AnalyticsCredentials)
	if err != nil {
		return nil, err
	}
	doc := &model.AnalyticsStats{
		PropertyID: c.spec.AnalyticsPropertyID,
		Timestamp:  utils.Timestamp(c.now()),
		Periods:    make(map[string]model.PeriodStats, len(analyticsPeriods)),
	}
	for _, period := range analyticsPeriods {
		values, err := runner.RunReport(ctx, c.spec.AnalyticsPropertyID, period.days, analyticsMetrics)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", period.suffix, err)
		}
		p, err := periodFromValues(values)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", period.suffix, err)
		}
		doc.Periods[period.suffix] = p
	}
	return doc, nil
}

// CollectAnalytics fetches every period, reconciles it with the previous
// google_analytics.json and writes the merged snapshot. On any failure the
// previous document is returned if it has periods, otherwise nil.
func (c *Collector) CollectAnalytics(ctx context.Context) *model.AnalyticsStats {
	path := c.out.Path(utils.AnalyticsFile)
	existing, _ := ReadJSON[model.AnalyticsStats](path)

	doc, err := c.fetchAnalytics(ctx)
	if err == nil {
		restored := 0
		for _, period := range analyticsPeriods {
			fresh := doc.Periods[period.suffix]
			old := existing.Periods[period.suffix]
			restored += len(SafeMerge(c.log, "GA "+period.suffix, &fresh, &old, model.PeriodCounterFields...))
			doc.Periods[period.suffix] = fresh
		}
		c.tracker.AddRestored(SourceAnalytics, restored)
		err = c.export(path, doc, len(doc.Periods))
	}
	if err != nil {
		c.log.Warn("failed to fetch Google Analytics stats", zap.Error(err))
		c.tracker.RecordError(ctx, SourceAnalytics, err)
		if len(existing.Periods) > 0 {
			return &existing
		}
		return nil
	}
	return doc
}

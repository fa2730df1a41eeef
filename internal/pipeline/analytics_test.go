package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/pkg/utils"
)

type fakeReportRunner struct {
	rows map[int][]string
	err  error
	days []int
}

func (f *fakeReportRunner) RunReport(ctx context.Context, propertyID string, days int, metrics []string) ([]string, error) {
	f.days = append(f.days, days)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[days], nil
}

func analyticsCollector(t *testing.T, runner ReportRunner, factoryErr error) *Collector {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	c, _ := newTestCollector(t, srv, model.CollectSpec{
		AnalyticsPropertyID:  "371754141",
		AnalyticsCredentials: `{"type":"service_account"}`,
	})
	c.newReportRunner = func(ctx context.Context, credentialsJSON string) (ReportRunner, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		return runner, nil
	}
	return c
}

func TestCollectAnalytics(t *testing.T) {
	runner := &fakeReportRunner{rows: map[int][]string{
		1:   {"120", "150", "2000", "61.5"},
		7:   {"800", "0", "14000", "70"},
		30:  {"3000", "4200", "60000", "72.25"},
		90:  {"9000", "12000", "180000", "75"},
		365: nil,
	}}
	c := analyticsCollector(t, runner, nil)
	seedJSON(t, c.out.Path(utils.AnalyticsFile), model.AnalyticsStats{
		Periods: map[string]model.PeriodStats{
			"7d":   {ActiveUsers: 1, Sessions: 999, Events: 1, AvgSessionDuration: 1},
			"365d": {ActiveUsers: 40000},
		},
	})

	doc := c.CollectAnalytics(context.Background())
	require.NotNil(t, doc)
	assert.Equal(t, []int{1, 7, 30, 90, 365}, runner.days)

	want := map[string]model.PeriodStats{
		"1d":   {ActiveUsers: 120, Sessions: 150, Events: 2000, AvgSessionDuration: 61.5},
		"7d":   {ActiveUsers: 800, Sessions: 999, Events: 14000, AvgSessionDuration: 70},
		"30d":  {ActiveUsers: 3000, Sessions: 4200, Events: 60000, AvgSessionDuration: 72.25},
		"90d":  {ActiveUsers: 9000, Sessions: 12000, Events: 180000, AvgSessionDuration: 75},
		"365d": {ActiveUsers: 40000},
	}
	if diff := cmp.Diff(want, doc.Periods); diff != "" {
		t.Fatalf("periods mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "371754141", doc.PropertyID)

	written, ok := ReadJSON[model.AnalyticsStats](c.out.Path(utils.AnalyticsFile))
	require.True(t, ok)
	assert.Len(t, written.Periods, 5)
}

func TestCollectAnalyticsFallsBackToPrior(t *testing.T) {
	runner := &fakeReportRunner{err: errors.New("permission denied")}
	c := analyticsCollector(t, runner, nil)
	prior := model.AnalyticsStats{
		PropertyID: "371754141",
		Timestamp:  "2025-05-31T00:00:00.000000Z",
		Periods:    map[string]model.PeriodStats{"90d": {Events: 900}},
	}
	seedJSON(t, c.out.Path(utils.AnalyticsFile), prior)

	doc := c.CollectAnalytics(context.Background())
	require.NotNil(t, doc)
	if diff := cmp.Diff(prior, *doc); diff != "" {
		t.Fatalf("fallback mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectAnalyticsWithoutPriorReturnsNil(t *testing.T) {
	c := analyticsCollector(t, nil, errors.New("bad credentials"))
	assert.Nil(t, c.CollectAnalytics(context.Background()))

	_, ok := ReadJSON[model.AnalyticsStats](c.out.Path(utils.AnalyticsFile))
	assert.False(t, ok, "nothing is written on failure")
}

func TestPeriodFromValues(t *testing.T) {
	p, err := periodFromValues(nil)
	require.NoError(t, err)
	assert.Equal(t, model.PeriodStats{}, p)

	_, err = periodFromValues([]string{"1", "2"})
	assert.Error(t, err)

	_, err = periodFromValues([]string{"1", "x", "3", "4"})
	assert.ErrorContains(t, err, "sessions")
}

func TestNewAnalyticsRunnerRejectsInvalidJSON(t *testing.T) {
	_, err := NewAnalyticsRunner(context.Background(), "not json")
	assert.Error(t, err)
}

package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/internal/store"
	"github.com/ultralytics/stars/pkg/utils"
)

// upstreamServer fakes every upstream; overrides replace the default handler for a pattern
func upstreamServer(t *testing.T, overrides map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	handlers := map[string]http.HandlerFunc{
		"/graphql": func(w http.ResponseWriter, r *http.Request) {
			writeJSONResponse(t, w, http.StatusOK, reposPage([]any{
				node("ultralytics", 1000, 100, 10, 5),
				node("hub-sdk", 20, 2, 1, 0),
			}, false, nil))
		},
		"/repos/ultralytics/": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"login":"a"},{"login":"b"}]`))
		},
		"/pypistats/packages/": func(w http.ResponseWriter, r *http.Request) {
			writeJSONResponse(t, w, http.StatusOK, map[string]any{
				"data": map[string]any{"last_day": 1, "last_week": 7, "last_month": 30},
			})
		},
		"/pepy/projects/": func(w http.ResponseWriter, r *http.Request) {
			writeJSONResponse(t, w, http.StatusOK, map[string]any{"total_downloads": 500})
		},
		"/shields/reddit/subreddit-subscribers/": func(w http.ResponseWriter, r *http.Request) {
			writeJSONResponse(t, w, http.StatusOK, map[string]any{"value": "3.2k"})
		},
	}
	for pattern, h := range overrides {
		handlers[pattern] = h
	}
	mux := http.NewServeMux()
	for pattern, h := range handlers {
		mux.HandleFunc(pattern, h)
	}
	return httptest.NewServer(mux)
}

func openHistory(t *testing.T) *store.SQLiteStore {
	t.Helper()
	history, err := store.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })
	return history
}

func TestRunWritesAllSnapshots(t *testing.T) {
	srv := upstreamServer(t, nil)
	defer srv.Close()

	history := openHistory(t)

	spec := model.CollectSpec{
		Org:                  "ultralytics",
		GitHubToken:          "test-token",
		PyPIPackages:         []string{"ultralytics", "hub-sdk"},
		AnalyticsPropertyID:  "371754141",
		AnalyticsCredentials: `{"type":"service_account"}`,
		Subreddit:            "ultralytics",
	}
	c, _ := newTestCollector(t, srv, spec)
	c.history = history
	c.newReportRunner = func(ctx context.Context, credentialsJSON string) (ReportRunner, error) {
		return &fakeReportRunner{rows: map[int][]string{90: {"10", "20", "9000", "30"}}}, nil
	}

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.Summary{
		TotalStars:        1020,
		TotalForks:        102,
		TotalIssues:       11,
		TotalPullRequests: 5,
		TotalDownloads:    1000,
		EventsPerDay:      100,
		TotalContributors: 4,
		RedditSubscribers: 3200,
		Timestamp:         "2025-06-01T12:00:00.000000Z",
	}, *report.Summary)

	for _, name := range []string{utils.GitHubFile, utils.PyPIFile, utils.AnalyticsFile, utils.RedditFile, utils.SummaryFile} {
		data, err := os.ReadFile(c.out.Path(name))
		require.NoError(t, err, name)
		assert.True(t, json.Valid(data), name)
		assert.True(t, strings.HasSuffix(string(data), "}\n"), name)
	}
	assert.Len(t, report.Exports, 5)

	for _, source := range []string{SourceGitHub, SourcePyPI, SourceAnalytics, SourceReddit, SourceSummary} {
		assert.Equal(t, model.RunStatusCompleted, report.Metrics.Sources[source].Status, source)
	}

	run, err := history.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, "ultralytics", run.Org)
	require.NotNil(t, run.EndedAt)
	require.NotNil(t, run.Summary)
	assert.Equal(t, int64(1020), run.Summary.TotalStars)
}

func TestRunSkipsAnalyticsWithoutCredentials(t *testing.T) {
	srv := upstreamServer(t, nil)
	defer srv.Close()

	c, _ := newTestCollector(t, srv, model.CollectSpec{
		Org:          "ultralytics",
		GitHubToken:  "test-token",
		PyPIPackages: []string{"ultralytics"},
		Subreddit:    "ultralytics",
	})
	c.newReportRunner = func(ctx context.Context, credentialsJSON string) (ReportRunner, error) {
		t.Fatal("analytics must not run without credentials")
		return nil, nil
	}

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report.Analytics)
	assert.Equal(t, "skipped", report.Metrics.Sources[SourceAnalytics].Status)
	assert.Zero(t, report.Summary.EventsPerDay)

	_, err = os.Stat(c.out.Path(utils.AnalyticsFile))
	assert.True(t, os.IsNotExist(err))
}

func TestRunRequiresToken(t *testing.T) {
	c := NewCollector(Options{Spec: model.CollectSpec{Org: "ultralytics"}})
	_, err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestRunFailsWhenGitHubFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(t, w, http.StatusOK, map[string]any{"data": map[string]any{"organization": nil}})
	}))
	defer srv.Close()

	history := openHistory(t)

	c, _ := newTestCollector(t, srv, model.CollectSpec{Org: "ultralytics", GitHubToken: "test-token"})
	c.history = history

	_, err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrOrgNotFound)

	runs, err := history.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, model.RunStatusFailed, runs[0].Metrics.Sources[SourceGitHub].Status)

	errs, err := history.RunErrors(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[len(errs)-1].Message, "organization not found")

	_, err = os.Stat(c.out.Path(utils.SummaryFile))
	assert.True(t, os.IsNotExist(err), "no summary on a failed run")
}

func TestRunCanceledIsRecordedAsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := upstreamServer(t, map[string]http.HandlerFunc{
		"/graphql": func(w http.ResponseWriter, r *http.Request) {
			cancel()
			// hold the response until the client has given up
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		},
	})
	defer srv.Close()

	history := openHistory(t)
	c, _ := newTestCollector(t, srv, model.CollectSpec{Org: "ultralytics", GitHubToken: "test-token"})
	c.history = history

	_, err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	runs, err := history.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.NotNil(t, runs[0].EndedAt)
	assert.Equal(t, 1, runs[0].Metrics.Errors)

	errs, err := history.RunErrors(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "run", errs[0].Source)
	assert.Contains(t, errs[0].Message, "context canceled")
}

func TestRunRecordsUpstreamStatusFailures(t *testing.T) {
	srv := upstreamServer(t, map[string]http.HandlerFunc{
		"/pepy/projects/": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
		"/shields/reddit/subreddit-subscribers/": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	})
	defer srv.Close()

	history := openHistory(t)
	c, _ := newTestCollector(t, srv, model.CollectSpec{
		Org:          "ultralytics",
		GitHubToken:  "test-token",
		PyPIPackages: []string{"ultralytics"},
		Subreddit:    "ultralytics",
	})
	c.history = history

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Metrics.Errors)

	errs, err := history.RunErrors(context.Background(), report.RunID)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, SourcePyPI, errs[0].Source)
	assert.Contains(t, errs[0].Message, "ultralytics total: HTTP 503")
	assert.Equal(t, SourceReddit, errs[1].Source)
	assert.Contains(t, errs[1].Message, "r/ultralytics: HTTP 404")
}

func TestNewCollectorDefaultsEndpoints(t *testing.T) {
	c := NewCollector(Options{Endpoints: model.Endpoints{GitHub: "https://ghe.example.com/api/v3"}})
	want := model.DefaultEndpoints
	want.GitHub = "https://ghe.example.com/api/v3"
	assert.Equal(t, want, c.endpoints)
}

package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/pkg/utils"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// sleepRecorder replaces real sleeps and remembers the requested delays
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestClient(t *testing.T, retry model.RetryConfig) (*Client, *sleepRecorder) {
	t.Helper()
	c := NewClient(ClientOptions{Retry: retry, Timeout: 5 * time.Second}, zaptest.NewLogger(t))
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	c.now = func() time.Time { return fixedNow }
	c.rand = func() float64 { return 0.5 } // zero jitter
	return c, rec
}

func testRetry() model.RetryConfig {
	return model.RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// newTestCollector points every upstream at srv and writes snapshots to a temp dir
func newTestCollector(t *testing.T, srv *httptest.Server, spec model.CollectSpec) (*Collector, *sleepRecorder) {
	t.Helper()
	client, _ := newTestClient(t, testRetry())
	c := NewCollector(Options{
		Spec:   spec,
		Client: client,
		Endpoints: model.Endpoints{
			GitHub:    srv.URL,
			PyPIStats: srv.URL + "/pypistats",
			Pepy:      srv.URL + "/pepy",
			Shields:   srv.URL + "/shields",
		},
		Pacing: model.DefaultPacing,
		Output: utils.NewOutputManager(t.TempDir()),
		Logger: zaptest.NewLogger(t),
	})
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	c.now = func() time.Time { return fixedNow }
	return c, rec
}

func writeJSONResponse(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func seedJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := WriteJSON(path, v); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

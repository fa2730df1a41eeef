package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultralytics/stars/internal/model"
)

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client, rec := newTestClient(t, testRetry())
	resp, err := client.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())
}

func TestDoReturnsLastRetryableResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, rec := newTestClient(t, testRetry())
	resp, err := client.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, rec.recorded(), 2)
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, rec := newTestClient(t, testRetry())
	resp, err := client.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, rec.recorded())
}

func TestDoHonorsRetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		want       time.Duration
	}{
		{"seconds", "2", 2 * time.Second},
		{"capped at max delay", "120", 30 * time.Second},
		{"http date", fixedNow.Add(5 * time.Second).Format(http.TimeFormat), 5 * time.Second},
		{"garbage falls back to backoff", "soon", time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.Header().Set("Retry-After", tt.retryAfter)
					w.WriteHeader(http.StatusTooManyRequests)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			client, rec := newTestClient(t, testRetry())
			resp, err := client.Do(context.Background(), Request{URL: srv.URL})
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, []time.Duration{tt.want}, rec.recorded())
		})
	}
}

func TestDoReplaysBodyOnRetry(t *testing.T) {
	var (
		calls  atomic.Int32
		bodies = make(chan string, 3)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, testRetry())
	var out map[string]any
	require.NoError(t, client.PostJSON(context.Background(), srv.URL, nil, map[string]string{"query": "q"}, &out))
	close(bodies)

	var got []string
	for b := range bodies {
		got = append(got, b)
	}
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"query":"q"}`, got[0])
	assert.Equal(t, got[0], got[1])
}

func TestDoTransportFailureExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, rec := newTestClient(t, testRetry())
	_, err := client.Do(context.Background(), Request{URL: url})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted), "got %v", err)
	assert.Len(t, rec.recorded(), 2)
}

func TestDoStopsOnCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client, _ := newTestClient(t, testRetry())
	_, err := client.Do(ctx, Request{URL: srv.URL})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetJSONHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(strings.Repeat("x", 500)))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, testRetry())
	var out any
	err := client.GetJSON(context.Background(), srv.URL, nil, nil, &out)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Len(t, httpErr.Body, errorBodyLimit)
	assert.True(t, strings.HasPrefix(err.Error(), "HTTP 401: "))
}

func TestRequestHeadersAndParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "orgstats/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "1", r.URL.Query().Get("per_page"))
		assert.Equal(t, "x", r.URL.Query().Get("keep"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, testRetry())
	params := map[string][]string{"per_page": {"1"}}
	resp, err := client.Get(context.Background(), srv.URL+"/path?keep=x", bearer("tok"), params)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBackoffDelay(t *testing.T) {
	cfg := model.RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffMultiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(cfg, tt.attempt, nil); got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	cfg.Jitter = true
	assert.Equal(t, 1050*time.Millisecond, backoffDelay(cfg, 0, func() float64 { return 1 }))
	assert.Equal(t, 950*time.Millisecond, backoffDelay(cfg, 0, func() float64 { return 0 }))
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	_, ok := retryAfter(h, fixedNow)
	assert.False(t, ok)

	h.Set("Retry-After", "-3")
	_, ok = retryAfter(h, fixedNow)
	assert.False(t, ok)

	h.Set("Retry-After", fixedNow.Add(-time.Minute).Format(http.TimeFormat))
	d, ok := retryAfter(h, fixedNow)
	assert.True(t, ok)
	assert.Zero(t, d)
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ultralytics/stars/internal/model"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "orgstats/1.0"
	errorBodyLimit   = 200
	maxResponseBytes = 32 << 20
)

// HTTPError is returned by the JSON helpers for any non-200 response
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string // first 200 bytes
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Request describes one outbound call. The body is kept as bytes so every
// retry attempt sends the same payload.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  url.Values
	Body    []byte
	Timeout time.Duration // per attempt; 0 uses the client default
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Response is a fully read upstream response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into out
func (r *Response) DecodeJSON(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}

// Client performs upstream API calls with retry and backoff
type Client struct {
	httpClient *http.Client
	retry      model.RetryConfig
	timeout    time.Duration
	userAgent  string
	log        *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	rand  func() float64
}

// ClientOptions configures NewClient
type ClientOptions struct {
	Retry      model.RetryConfig
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// NewClient creates a retrying API client
func NewClient(opts ClientOptions, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = model.DefaultRetryConfig
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		httpClient: hc,
		retry:      retry,
		timeout:    timeout,
		userAgent:  ua,
		log:        log,
		sleep:      sleepContext,
		now:        time.Now,
		rand:       defaultRand,
	}
}

// send performs a single attempt
func (c *Client) send(ctx context.Context, r Request) (*Response, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := r.URL
	if len(r.Params) > 0 {
		parsed, err := url.Parse(r.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid URL %q: %w", r.URL, err)
		}
		q := parsed.Query()
		for k, vs := range r.Params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method(), u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	c.log.Debug("upstream response",
		zap.String("method", r.method()),
		zap.String("url", u),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", c.now().Sub(start)))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Get issues a retried GET
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string, params url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Headers: headers, Params: params})
}

// GetJSON fetches JSON from rawURL; any status other than 200 is an *HTTPError
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, params url.Values, out any) error {
	resp, err := c.Get(ctx, rawURL, headers, params)
	if err != nil {
		return err
	}
	if err := checkStatus(http.MethodGet, rawURL, resp); err != nil {
		return err
	}
	return resp.DecodeJSON(out)
}

// PostJSON posts payload as JSON and decodes the JSON reply into out
func (c *Client) PostJSON(ctx context.Context, rawURL string, headers map[string]string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	resp, err := c.Do(ctx, Request{Method: http.MethodPost, URL: rawURL, Headers: headers, Body: body})
	if err != nil {
		return err
	}
	if err := checkStatus(http.MethodPost, rawURL, resp); err != nil {
		return err
	}
	return resp.DecodeJSON(out)
}

func checkStatus(method, rawURL string, resp *Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body := resp.Body
	if len(body) > errorBodyLimit {
		body = body[:errorBodyLimit]
	}
	return &HTTPError{
		Method:     method,
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

// bearer returns the Authorization header for a GitHub token. An empty token
// yields an empty, writable header map for anonymous requests.
func bearer(token string) map[string]string {
	if token == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

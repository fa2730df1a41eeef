package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ultralytics/stars/internal/model"
)

// ErrRetriesExhausted indicates every attempt failed before a response arrived.
var ErrRetriesExhausted = errors.New("retries exhausted")

// retryableStatus reports whether a response status is worth another attempt
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Do sends r, retrying transport failures, 429 and 5xx responses with
// exponential backoff. The last response is returned even if it is still
// retryable so callers can decide what the status means for them.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	cfg := c.retry
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, r)
		if err == nil && !retryableStatus(resp.StatusCode) {
			if attempt > 0 {
				c.log.Debug("retry succeeded",
					zap.String("url", r.URL),
					zap.Int("attempt", attempt+1))
			}
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if attempt == attempts-1 {
			if err == nil {
				return resp, nil
			}
			lastErr = err
			break
		}

		delay := backoffDelay(cfg, attempt, c.rand)
		fields := []zap.Field{
			zap.String("method", r.method()),
			zap.String("url", r.URL),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
		}
		if err != nil {
			lastErr = err
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("status", resp.StatusCode))
			if ra, ok := retryAfter(resp.Header, c.now()); ok {
				delay = ra
				if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			}
		}
		c.log.Warn("request failed, retrying", append(fields, zap.Duration("backoff", delay))...)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%s %s: %w after %d attempts: %v", r.method(), r.URL, ErrRetriesExhausted, attempts, lastErr)
}

// backoffDelay computes initial * multiplier^attempt capped at MaxDelay,
// with up to ±5% jitter when enabled.
func backoffDelay(cfg model.RetryConfig, attempt int, rnd func() float64) time.Duration {
	mult := cfg.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt)))

	// Cap at max delay
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	if cfg.Jitter && rnd != nil {
		jitter := time.Duration(float64(delay) * 0.1 * (rnd() - 0.5))
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date
func retryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultRand() float64 {
	return rand.Float64()
}

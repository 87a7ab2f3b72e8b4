// Package fetch wraps the HTTP client used to pull pages from the racing
// site: politeness throttling, retry with exponential backoff and jitter,
// and a typed error carrying the last status.
package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/keibalab/keiba-collector/internal/config"
	"github.com/keibalab/keiba-collector/internal/metrics"
)

const (
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 15 * time.Second
)

// Error reports an exhausted fetch. StatusCode is zero when the failure was
// at the transport level.
type Error struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempts", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v after %d attempts", e.URL, e.Err, e.Attempts)
}

func (e *Error) Unwrap() error { return e.Err }

// Client fetches pages with the shared throttle applied before every
// request, including retries.
type Client struct {
	http *resty.Client
}

// NewClient builds a fetch client. maxRetries is the total attempt budget:
// transient failures (transport errors, 5xx, 429) are retried until it is
// spent; other 4xx statuses are permanent. 429 responses honor a
// Retry-After hint when one is present.
func NewClient(cfg config.SourceConfig, throttle *Throttle) *Client {
	c := resty.New().
		SetTimeout(cfg.RequestTimeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept-Language", "ja,en-US;q=0.9,en;q=0.8").
		SetRetryCount(cfg.MaxRetries - 1).
		SetRetryWaitTime(baseBackoff).
		SetRetryMaxWaitTime(maxBackoff).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError ||
				r.StatusCode() == http.StatusTooManyRequests
		}).
		SetRetryAfter(retryAfter)

	c.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return throttle.Wait(req.Context())
	})

	return &Client{http: c}
}

// Get fetches one page and returns the raw body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get(url)

	if m := metrics.Get(); m != nil {
		m.ObserveFetchDuration(time.Since(start).Seconds())
		if resp != nil && resp.Request.Attempt > 1 {
			m.AddFetchRetries(float64(resp.Request.Attempt - 1))
		}
	}

	if err != nil {
		attempts := 1
		if resp != nil {
			attempts = resp.Request.Attempt
		}
		if m := metrics.Get(); m != nil {
			m.IncFetchErrors()
		}
		return nil, &Error{URL: url, Attempts: attempts, Err: err}
	}
	if resp.IsError() {
		if m := metrics.Get(); m != nil {
			m.IncFetchErrors()
		}
		return nil, &Error{
			URL:        url,
			StatusCode: resp.StatusCode(),
			Attempts:   resp.Request.Attempt,
			Err:        fmt.Errorf("unexpected status %s", resp.Status()),
		}
	}

	return resp.Body(), nil
}

// retryAfter computes the wait before the next attempt: the server's
// Retry-After hint when usable, otherwise exponential backoff with jitter.
func retryAfter(client *resty.Client, resp *resty.Response) (time.Duration, error) {
	if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
		if hint := resp.Header().Get("Retry-After"); hint != "" {
			if secs, err := strconv.Atoi(hint); err == nil && secs >= 0 {
				d := time.Duration(secs) * time.Second
				if d > maxBackoff {
					d = maxBackoff
				}
				return d, nil
			}
		}
	}

	attempt := 1
	if resp != nil {
		attempt = resp.Request.Attempt
	}
	backoff := baseBackoff << uint(attempt-1)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	// Full jitter, never below half the computed backoff.
	return backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1)), nil
}

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keibalab/keiba-collector/internal/config"
)

func testSourceConfig(maxRetries int) config.SourceConfig {
	return config.SourceConfig{
		RequestTimeout: 5 * time.Second,
		MaxRetries:     maxRetries,
		UserAgent:      "keiba-collector-test",
	}
}

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "keiba-collector-test", r.Header.Get("User-Agent"))
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	client := NewClient(testSourceConfig(3), NewThrottle(0))
	body, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", string(body))
}

func TestGetRetryBound(t *testing.T) {
	// A URL that always answers with a transient status gets exactly
	// MaxRetries attempts, then a fetch error. Retry-After: 0 keeps the
	// test from sleeping through backoff.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(testSourceConfig(3), NewThrottle(0))
	_, err := client.Get(context.Background(), srv.URL)
	require.Error(t, err)
	require.Equal(t, int32(3), hits.Load())

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, http.StatusTooManyRequests, ferr.StatusCode)
	require.Equal(t, 3, ferr.Attempts)
	require.Equal(t, srv.URL, ferr.URL)
}

func TestGetNoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(testSourceConfig(3), NewThrottle(0))
	_, err := client.Get(context.Background(), srv.URL)
	require.Error(t, err)
	require.Equal(t, int32(1), hits.Load(), "4xx must not be retried")

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, http.StatusNotFound, ferr.StatusCode)
}

func TestGetRecoversAfterTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	client := NewClient(testSourceConfig(3), NewThrottle(0))
	body, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "recovered", string(body))
	require.Equal(t, int32(2), hits.Load())
}

func TestThrottleSpacesRequests(t *testing.T) {
	th := NewThrottle(60 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, th.Wait(ctx))
	require.NoError(t, th.Wait(ctx))
	elapsed := time.Since(start)

	// The second wait must honor at least the lower jitter bound (0.5x).
	require.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestThrottleCanceledContext(t *testing.T) {
	th := NewThrottle(time.Minute)
	ctx := context.Background()
	require.NoError(t, th.Wait(ctx)) // first slot is immediate

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, th.Wait(canceled), context.Canceled)
}

func TestThrottleDisabled(t *testing.T) {
	th := NewThrottle(0)
	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, th.Wait(context.Background()))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

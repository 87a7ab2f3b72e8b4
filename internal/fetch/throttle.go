package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Throttle enforces a minimum delay between consecutive outbound requests.
// The delay is randomized between 0.5x and 1.5x the configured interval so
// request timing doesn't look mechanical to the source. The last-slot
// timestamp is the only state shared across concurrent fetches and is
// updated under the mutex.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewThrottle creates a throttle with the given base interval. A zero or
// negative interval disables throttling.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Wait blocks until the caller may issue a request, or until the context is
// canceled. Each caller reserves the next slot atomically, so concurrent
// fetches are spaced out rather than released together.
func (t *Throttle) Wait(ctx context.Context) error {
	if t.interval <= 0 {
		return ctx.Err()
	}

	t.mu.Lock()
	now := time.Now()
	slot := t.next
	if slot.Before(now) {
		slot = now
	}
	jittered := time.Duration(float64(t.interval) * (0.5 + rand.Float64()))
	t.next = slot.Add(jittered)
	t.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

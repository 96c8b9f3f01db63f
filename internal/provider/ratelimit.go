package provider

import (
	"sync"
	"time"
)

// rateLimiter is a sliding-window request limiter. Provider quotas are
// expressed as "N requests per rolling window", so the limiter keeps the
// actual request timestamps rather than a refill rate. It is the one
// piece of state shared across concurrent sessions and is safe for
// concurrent use.
type rateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	times       []time.Time
	now         func() time.Time
}

// newRateLimiter creates a limiter allowing maxRequests per window.
// maxRequests <= 0 disables limiting.
func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Record notes one request at the current time.
func (r *rateLimiter) Record() {
	if r.maxRequests <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.prune(now)
	r.times = append(r.times, now)
}

// Limited reports whether the window currently holds the maximum number
// of requests.
func (r *rateLimiter) Limited() bool {
	if r.maxRequests <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(r.now())
	return len(r.times) >= r.maxRequests
}

// Wait returns how long until the oldest recorded request leaves the
// window, or zero when the limiter is not limiting.
func (r *rateLimiter) Wait() time.Duration {
	if r.maxRequests <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.prune(now)
	if len(r.times) < r.maxRequests {
		return 0
	}
	remaining := r.window - now.Sub(r.times[0])
	if remaining < 0 {
		return 0
	}
	return remaining
}

// prune drops timestamps that have fallen out of the window. Callers
// must hold r.mu.
func (r *rateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.times) && !r.times[i].After(cutoff) {
		i++
	}
	r.times = r.times[i:]
}

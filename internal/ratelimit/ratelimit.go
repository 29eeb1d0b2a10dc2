// Package ratelimit implements a fixed-window request counter keyed by
// client IP.
package ratelimit

import (
	"strconv"
	"sync"
	"time"
)

type entry struct {
	count     int
	resetTime time.Time
}

// Limiter counts requests per key in fixed windows. In-process by design:
// one server instance fronts this deployment.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// New returns a Limiter allowing limit requests per window per key.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow records one request for key. When the window is exhausted it returns
// ok=false and the remaining time until the window resets.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e := l.entries[key]
	if e == nil || now.After(e.resetTime) {
		e = &entry{resetTime: now.Add(l.window)}
		l.entries[key] = e
	}
	e.count++
	if e.count > l.limit {
		return false, e.resetTime.Sub(now)
	}
	return true, 0
}

// Limit returns the configured per-window limit.
func (l *Limiter) Limit() int { return l.limit }

// sweep drops expired windows. Called under mu; cheap enough to run every
// request at this traffic level.
func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.entries {
		if now.After(e.resetTime) {
			delete(l.entries, k)
		}
	}
}

// RetryAfterSeconds formats a Retry-After header value, rounding up so the
// client never retries inside the same window.
func RetryAfterSeconds(d time.Duration) string {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

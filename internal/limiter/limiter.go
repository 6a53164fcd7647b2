// Package limiter is a per-key sliding window rate limiter.
package limiter

import (
	"sync"
	"time"
)

type clientStatus struct {
	currCount       int       // requests in the current window
	prevCount       int       // requests in the previous window
	currWindowStart time.Time // start of the current window
}

type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientStatus
	limit   float64
	window  time.Duration
	now     func() time.Time
}

type Option func(*RateLimiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(rl *RateLimiter) { rl.now = now }
}

// New allows limit requests per window and key.
func New(limit int, window time.Duration, opts ...Option) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientStatus),
		limit:   float64(limit),
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Allow records one request for key and reports whether it is within the
// limit. The previous window counts in proportion to how much of it still
// overlaps the sliding window ending now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	currWindowStart := now.Truncate(rl.window)

	status, exists := rl.clients[key]
	if !exists {
		rl.clients[key] = &clientStatus{currCount: 1, currWindowStart: currWindowStart}
		return true
	}

	if currWindowStart.After(status.currWindowStart) {
		if currWindowStart.Sub(status.currWindowStart) == rl.window {
			status.prevCount = status.currCount
		} else {
			status.prevCount = 0
		}
		status.currCount = 0
		status.currWindowStart = currWindowStart
	}

	prevWeight := float64(rl.window-now.Sub(currWindowStart)) / float64(rl.window)
	estimated := float64(status.prevCount)*prevWeight + float64(status.currCount)
	if estimated >= rl.limit {
		return false
	}

	status.currCount++
	return true
}

// Prune forgets keys idle for more than two windows.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Truncate(rl.window).Add(-rl.window)
	removed := 0
	for key, status := range rl.clients {
		if status.currWindowStart.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

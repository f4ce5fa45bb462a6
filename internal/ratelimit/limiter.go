// Package ratelimit implements fixed-window request limiting keyed by client address.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/TheMich157/whitelisthub/internal/clock"
)

// Limiter tracks a fixed window per key. Each key gets Limit requests per Window.
type Limiter struct {
	limit  int
	window time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count int
	start time.Time
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewLimiter creates a limiter allowing limit requests per window for each key.
// A nil clock uses the system clock.
func NewLimiter(limit int, per time.Duration, c clock.Clock) *Limiter {
	if c == nil {
		c = &clock.RealClock{}
	}
	if limit <= 0 {
		limit = 1
	}
	return &Limiter{
		limit:   limit,
		window:  per,
		clock:   c,
		windows: make(map[string]*window),
	}
}

// Allow records one request for key and reports whether it fits in the current window.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.windows[key] = w
	}

	if w.count >= l.limit {
		return Decision{
			Allowed:    false,
			RetryAfter: w.start.Add(l.window).Sub(now),
		}
	}
	w.count++
	return Decision{Allowed: true, Remaining: l.limit - w.count}
}

// Limit returns the number of requests allowed per window.
func (l *Limiter) Limit() int {
	return l.limit
}

// Reset clears the window for a specific key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// CleanupExpired removes windows that have already closed and returns how many were dropped.
func (l *Limiter) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// StartCleanup prunes closed windows every interval until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.CleanupExpired()
			}
		}
	}()
}

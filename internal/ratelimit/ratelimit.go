// Package ratelimit implements a fixed-window request limiter keyed by
// resolved source address.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// Limiter caps the number of requests per key within a fixed time window.
// Safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	limit     int
	interval  time.Duration
	windows   map[string]*window
	lastPrune time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Limiter allowing limit requests per interval for each key.
func New(limit int, interval time.Duration) *Limiter {
	return &Limiter{
		limit:    limit,
		interval: interval,
		windows:  make(map[string]*window),
		now:      time.Now,
	}
}

// Allow records a request for key and reports whether it is within the
// limit. The first rejected request does not extend the window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.interval {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}

	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// pruneLocked drops expired windows at most once per interval so the map
// does not grow unbounded under address churn.
func (l *Limiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.interval {
		return
	}
	l.lastPrune = now
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.interval {
			delete(l.windows, key)
		}
	}
}

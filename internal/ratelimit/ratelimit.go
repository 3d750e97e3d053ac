// Package ratelimit implements a sliding-window request limiter keyed by
// an arbitrary string (user ID or client IP). Limits are advisory
// anti-abuse bookkeeping, not a security boundary: state is in-memory and
// resets on process restart.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows at most MaxRequests per key within a sliding Window.
// Each Limiter instance keeps independent state; a key being limited on
// one instance has no effect on another.
type Limiter struct {
	maxRequests int
	window      time.Duration

	mu       sync.Mutex
	requests map[string][]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Limiter permitting maxRequests per window.
func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// IsLimited reports whether the key has exhausted its budget. A rejected
// call is not recorded, so hammering a limited key does not extend the
// penalty beyond the window.
func (l *Limiter) IsLimited(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pruned := l.prune(key, now)

	if len(pruned) >= l.maxRequests {
		l.requests[key] = pruned
		return true
	}

	l.requests[key] = append(pruned, now)
	return false
}

// Remaining returns how many requests the key may still make within the
// current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	pruned := l.prune(key, l.now())
	l.requests[key] = pruned

	remaining := l.maxRequests - len(pruned)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// ResetAfter returns how long until the key's oldest in-window request
// falls out of the window, floored at zero. A key with no recorded
// requests resets immediately.
func (l *Limiter) ResetAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pruned := l.prune(key, now)
	l.requests[key] = pruned

	if len(pruned) == 0 {
		return 0
	}

	reset := l.window - now.Sub(pruned[0])
	if reset < 0 {
		reset = 0
	}
	return reset
}

// Cleanup purges keys with no timestamps left inside the window and
// returns how many were removed. Intended to run periodically to bound
// memory.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, timestamps := range l.requests {
		if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) > l.window {
			delete(l.requests, key)
			removed++
		}
	}
	return removed
}

// prune drops timestamps older than the window. Caller must hold the lock.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	timestamps := l.requests[key]

	pruned := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	return pruned
}

package httpapi

import (
	"sync"
	"time"
)

// loginLimiter is a sliding window counter keyed by client IP and by email.
type loginLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string][]time.Time
	sweeps  int
}

func newLoginLimiter(max int, window time.Duration) *loginLimiter {
	return &loginLimiter{
		window:  window,
		max:     max,
		entries: make(map[string][]time.Time),
	}
}

func (l *loginLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	l.sweeps++
	if l.sweeps%256 == 0 {
		l.prune(cutoff)
	}

	ts := trimBefore(l.entries[key], cutoff)
	if len(ts) >= l.max {
		l.entries[key] = ts
		return false
	}
	l.entries[key] = append(ts, now)
	return true
}

// prune drops keys whose attempts all fell out of the window.
func (l *loginLimiter) prune(cutoff time.Time) {
	for k, ts := range l.entries {
		if ts = trimBefore(ts, cutoff); len(ts) == 0 {
			delete(l.entries, k)
		} else {
			l.entries[k] = ts
		}
	}
}

func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// Package ratelimit gates outbound API requests with a strict sliding window:
// at most MaxRequests admissions within any trailing Window.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits or rejects requests against a trailing sliding window.
// Rejections leave no trace, so a burst of denied calls cannot extend the
// window. Safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	admitted    []time.Time
}

// New returns a Limiter allowing maxRequests per window. Non-positive values
// fall back to 30 requests per minute.
func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{window: window, maxRequests: maxRequests}
}

// Admit prunes admissions older than now-window, then records now and returns
// true if capacity remains. Returns false without side effects otherwise.
func (l *Limiter) Admit(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)
	if len(l.admitted) >= l.maxRequests {
		return false
	}
	l.admitted = append(l.admitted, now)
	return true
}

// Pending returns the number of admissions still inside the window at now.
func (l *Limiter) Pending(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)
	return len(l.admitted)
}

// pruneLocked drops timestamps at or before now-window. Must be called with
// the mutex held. Admissions are appended in order, so a single scan from the
// front suffices.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for ; i < len(l.admitted) && !l.admitted[i].After(cutoff); i++ {
	}
	if i > 0 {
		l.admitted = append(l.admitted[:0], l.admitted[i:]...)
	}
}

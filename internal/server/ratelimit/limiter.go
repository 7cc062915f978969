package ratelimit

import (
	"sync"
	"time"
)

// window tracks one identity's request count inside the current window.
type window struct {
	count int
	start time.Time
}

// Decision is the outcome of a single Allow call, carrying the values
// handlers need for rate-limit response headers.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a per-identity fixed-window request counter. The window
// resets on expiry rather than sliding: once window-start is older than
// the configured duration, the count starts over from zero. Each
// protected route gets its own Limiter instance.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	period  time.Duration

	calls int // purge pacing

	now func() time.Time
}

// New creates a limiter allowing max requests per period for each identity.
func New(max int, period time.Duration) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		max:     max,
		period:  period,
		now:     time.Now,
	}
}

// purgeEvery bounds how often the stale-entry sweep runs, in Allow calls.
const purgeEvery = 512

// Allow records a request for the identity and reports whether it is
// within the limit. The request that exceeds the limit is itself the
// rejected one.
func (l *Limiter) Allow(identity string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	l.calls++
	if l.calls%purgeEvery == 0 {
		l.purgeLocked(now)
	}

	w, ok := l.windows[identity]
	if !ok {
		w = &window{start: now}
		l.windows[identity] = w
	} else if now.Sub(w.start) > l.period {
		w.count = 0
		w.start = now
	}

	w.count++

	remaining := l.max - w.count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   w.count <= l.max,
		Remaining: remaining,
		ResetAt:   w.start.Add(l.period),
	}
}

// purgeLocked drops identities whose window has long expired.
// Caller holds the mutex.
func (l *Limiter) purgeLocked(now time.Time) {
	cutoff := now.Add(-2 * l.period)
	for id, w := range l.windows {
		if w.start.Before(cutoff) {
			delete(l.windows, id)
		}
	}
}

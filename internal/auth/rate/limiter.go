// Package rate implements the fixed-window attempt limiter used to throttle
// credential guessing. Counters live in process memory; keys are scoped per
// identity and client address so one noisy caller cannot exhaust another's
// budget.
package rate

import (
	"sync"
	"time"
)

// cleanupEvery bounds how often the stale-bucket sweep runs, counted in
// calls to Check.
const cleanupEvery = 1024

// Decision is the outcome of a single Check call. When Allowed is false,
// RetryAfter is the whole-second wait the caller should surface, never less
// than one second.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type bucket struct {
	windowStart time.Time
	count       int
	lockUntil   time.Time
}

// Limiter tracks attempt counts per key in fixed windows, with an optional
// lockout penalty once a window's budget is exceeded.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	checks  int
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns an empty limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one attempt against key and reports whether it is within
// budget. limit attempts are allowed per window; the attempt that exceeds
// the budget is rejected and, when lockFor is positive, arms a lockout that
// rejects every attempt until it lapses. Attempts made during an active
// lockout do not extend it.
func (l *Limiter) Check(key string, limit int, window, lockFor time.Duration) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.checks++
	if l.checks%cleanupEvery == 0 {
		l.sweep(now, window)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}

	if !b.lockUntil.IsZero() && now.Before(b.lockUntil) {
		return Decision{RetryAfter: ceilSeconds(b.lockUntil.Sub(now))}
	}

	if !now.Before(b.windowStart.Add(window)) {
		b.windowStart = now
		b.count = 0
		b.lockUntil = time.Time{}
	}

	if b.count >= limit {
		if lockFor > 0 {
			b.lockUntil = now.Add(lockFor)
			return Decision{RetryAfter: ceilSeconds(lockFor)}
		}
		return Decision{RetryAfter: ceilSeconds(b.windowStart.Add(window).Sub(now))}
	}

	b.count++
	return Decision{Allowed: true}
}

// sweep drops buckets whose window and lockout have both lapsed. Caller
// holds mu.
func (l *Limiter) sweep(now time.Time, window time.Duration) {
	for key, b := range l.buckets {
		if now.Before(b.windowStart.Add(window)) {
			continue
		}
		if !b.lockUntil.IsZero() && now.Before(b.lockUntil) {
			continue
		}
		delete(l.buckets, key)
	}
}

// ceilSeconds rounds up to a whole second with a one-second floor, so a
// client that honours Retry-After never retries into the same window.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return secs * time.Second
}

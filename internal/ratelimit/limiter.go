// Package ratelimit implements a fixed-window request counter keyed by caller
// identity.
//
// State is process-local: each server instance counts independently and all
// counters are lost on restart. Deployments running several instances get a
// per-instance limit, not a global one.
package ratelimit

import (
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultSweepProbability is the chance that a Check call also purges expired
// records.
const DefaultSweepProbability = 0.01

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long to wait before the window resets. Returns 0 if
// the request was allowed.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

type record struct {
	count   int
	resetAt time.Time
}

// Limiter is safe for concurrent use. Every check-and-increment happens under
// one mutex, so a key never admits more than limit requests per window.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record

	now              func() time.Time
	random           func() float64
	sweepProbability float64
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithRandom replaces the source used to decide on opportunistic purges.
func WithRandom(random func() float64) Option {
	return func(l *Limiter) {
		l.random = random
	}
}

// WithSweepProbability sets the purge chance per Check. Values outside [0, 1]
// are clamped.
func WithSweepProbability(p float64) Option {
	return func(l *Limiter) {
		l.sweepProbability = min(max(p, 0), 1)
	}
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		records:          make(map[string]*record),
		now:              time.Now,
		random:           rand.Float64,
		sweepProbability: DefaultSweepProbability,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request for key. A key without a record, or whose window
// has passed, starts a fresh window. Once the count reaches limit, further
// calls are refused without incrementing.
func (l *Limiter) Check(key string, window time.Duration, limit int) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.sweepProbability > 0 && l.random() < l.sweepProbability {
		l.purgeLocked(now)
	}

	if limit <= 0 {
		return Result{Allowed: false, Limit: limit, ResetAt: now.Add(window)}
	}

	rec, exists := l.records[key]
	if !exists || !now.Before(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(window)}
		l.records[key] = rec
		return Result{Allowed: true, Limit: limit, Remaining: limit - 1, ResetAt: rec.resetAt}
	}

	if rec.count >= limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: rec.resetAt}
	}

	rec.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - rec.count, ResetAt: rec.resetAt}
}

// Reset forgets the record for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
}

// Purge removes every record whose window has expired and returns how many
// were removed.
func (l *Limiter) Purge() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.purgeLocked(l.now())
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *Limiter) purgeLocked(now time.Time) int {
	removed := 0
	for key, rec := range l.records {
		if !now.Before(rec.resetAt) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

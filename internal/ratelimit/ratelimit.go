// Package ratelimit implements a fixed-window request limiter keyed by
// API key. Windows are aligned to the limiter's start time, which makes
// the arithmetic cheap and the retry hint exact.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// rejectedTotal is deliberately unlabeled: keys are per-caller hashes,
// and labeling by them would grow metric cardinality without bound.
var rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "engramd",
	Subsystem: "ratelimit",
	Name:      "rejected_total",
	Help:      "Requests rejected by the fixed-window rate limiter.",
})

// idleWindows is how many full windows an entry may sit untouched
// before eviction reclaims it.
const idleWindows = 3

type window struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// Limiter tracks per-key request counts within fixed windows.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	entries  map[string]*window
	lastScan time.Time
}

// New builds a limiter allowing limit requests per window per key.
func New(limit int, windowSize time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  windowSize,
		now:     time.Now,
		entries: make(map[string]*window),
	}
}

// Allow records one request for key. When the window budget is
// exhausted it returns false with the duration until the window
// resets.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeEvict(now)

	e, ok := l.entries[key]
	if !ok {
		e = &window{windowStart: now}
		l.entries[key] = e
	}
	if now.Sub(e.windowStart) >= l.window {
		e.windowStart = now
		e.count = 0
	}
	e.lastSeen = now

	if e.count >= l.limit {
		rejectedTotal.Inc()
		return false, e.windowStart.Add(l.window).Sub(now)
	}
	e.count++
	return true, 0
}

// maybeEvict drops entries idle for idleWindows full windows. Runs at
// most once per window so hot paths stay cheap. Caller holds the lock.
func (l *Limiter) maybeEvict(now time.Time) {
	if now.Sub(l.lastScan) < l.window {
		return
	}
	l.lastScan = now
	cutoff := now.Add(-time.Duration(idleWindows) * l.window)
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// Len reports how many keys the limiter currently tracks.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeClock lets tests drive window boundaries deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := New(limit, window)
	l.now = func() time.Time { return clock.t }
	return l, clock
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("key-a")
		if !ok {
			t.Fatalf("request %d rejected below limit", i+1)
		}
	}
	ok, retryAfter := l.Allow("key-a")
	if ok {
		t.Fatal("fourth request allowed past limit")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retryAfter = %v, want within (0, 1m]", retryAfter)
	}
}

func TestRejectionCounterHasNoKeyDimension(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	before := testutil.ToFloat64(rejectedTotal)
	l.Allow("first-key")
	l.Allow("first-key")
	l.Allow("second-key")
	l.Allow("second-key")

	// ToFloat64 panics on a vector, so it passing at all proves the
	// counter carries no per-key label. Two rejections, one series.
	if got := testutil.ToFloat64(rejectedTotal) - before; got != 2 {
		t.Fatalf("rejected total delta = %v, want 2", got)
	}
}

func TestWindowReset(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)
	l.Allow("k")
	l.Allow("k")
	if ok, _ := l.Allow("k"); ok {
		t.Fatal("allowed past limit before reset")
	}

	clock.advance(time.Minute)
	if ok, _ := l.Allow("k"); !ok {
		t.Fatal("rejected after window reset")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	l.Allow("a")
	if ok, _ := l.Allow("b"); !ok {
		t.Fatal("key b throttled by key a")
	}
	if ok, _ := l.Allow("a"); ok {
		t.Fatal("key a not throttled")
	}
}

func TestRetryAfterShrinks(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)
	l.Allow("k")

	_, first := l.Allow("k")
	clock.advance(20 * time.Second)
	_, second := l.Allow("k")
	if second >= first {
		t.Fatalf("retryAfter did not shrink: first=%v second=%v", first, second)
	}
	if second != 40*time.Second {
		t.Fatalf("retryAfter = %v, want 40s", second)
	}
}

func TestIdleEviction(t *testing.T) {
	l, clock := newTestLimiter(10, time.Minute)
	l.Allow("stale")
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}

	// Past the idle horizon, any call sweeps the stale entry.
	clock.advance(4 * time.Minute)
	l.Allow("fresh")
	if l.Len() != 1 {
		t.Fatalf("Len = %d after eviction, want 1", l.Len())
	}
	if _, ok := l.entries["stale"]; ok {
		t.Fatal("stale entry survived eviction")
	}
}

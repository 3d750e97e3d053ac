package ratelimit

import (
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(maxRequests int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(maxRequests, window)
	l.now = clock.now
	return l, clock
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if l.IsLimited("user-1") {
			t.Fatalf("call %d unexpectedly limited", i+1)
		}
	}

	if !l.IsLimited("user-1") {
		t.Fatal("4th call within window should be limited")
	}
}

func TestLimiterWindowExpiry(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(2, time.Minute)

	l.IsLimited("k")
	l.IsLimited("k")
	if !l.IsLimited("k") {
		t.Fatal("3rd call should be limited")
	}

	clock.advance(61 * time.Second)

	if l.IsLimited("k") {
		t.Fatal("call after window elapsed should be allowed")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(1, time.Minute)

	if l.IsLimited("a") {
		t.Fatal("first call for key a should pass")
	}
	if !l.IsLimited("a") {
		t.Fatal("second call for key a should be limited")
	}
	if l.IsLimited("b") {
		t.Fatal("key b should be unaffected by key a's limit")
	}
}

func TestLimiterRejectedCallNotRecorded(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(1, time.Minute)

	l.IsLimited("k")
	for i := 0; i < 10; i++ {
		clock.advance(time.Second)
		l.IsLimited("k")
	}

	// Only the first accepted call counts toward the window, so 51 more
	// seconds clears it regardless of the rejected attempts.
	clock.advance(51 * time.Second)
	if l.IsLimited("k") {
		t.Fatal("rejected calls must not extend the penalty window")
	}
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(5, time.Minute)

	if got := l.Remaining("k"); got != 5 {
		t.Fatalf("Remaining() = %d, want 5", got)
	}

	l.IsLimited("k")
	l.IsLimited("k")

	if got := l.Remaining("k"); got != 3 {
		t.Fatalf("Remaining() after 2 requests = %d, want 3", got)
	}
}

func TestResetAfter(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(5, time.Minute)

	if got := l.ResetAfter("k"); got != 0 {
		t.Fatalf("ResetAfter() with no requests = %v, want 0", got)
	}

	l.IsLimited("k")
	clock.advance(20 * time.Second)

	if got := l.ResetAfter("k"); got != 40*time.Second {
		t.Fatalf("ResetAfter() = %v, want 40s", got)
	}

	clock.advance(45 * time.Second)
	if got := l.ResetAfter("k"); got != 0 {
		t.Fatalf("ResetAfter() past window = %v, want 0", got)
	}
}

func TestCleanupDropsStaleKeys(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(5, time.Minute)

	l.IsLimited("stale")
	clock.advance(2 * time.Minute)
	l.IsLimited("fresh")

	if removed := l.Cleanup(); removed != 1 {
		t.Fatalf("Cleanup() removed = %d, want 1", removed)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.requests["stale"]; ok {
		t.Error("stale key should have been purged")
	}
	if _, ok := l.requests["fresh"]; !ok {
		t.Error("fresh key should survive cleanup")
	}
}

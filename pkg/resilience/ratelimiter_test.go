package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock drives limiter time deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

func newTestLimiter(opts LimiterOpts) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewLimiter(opts)
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l, clock
}

func TestLimiterAllowsBurst(t *testing.T) {
	l, _ := newTestLimiter(LimiterOpts{Rate: 1, Burst: 3, MaxConcurrent: 5})
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("expected allow on call %d", i)
		}
	}
	if l.Allow() {
		t.Fatal("expected rejection after burst exhausted")
	}
}

func TestLimiterRefill(t *testing.T) {
	l, clock := newTestLimiter(LimiterOpts{Rate: 10, Burst: 5, MaxConcurrent: 1})
	for i := 0; i < 5; i++ {
		l.Allow()
	}
	if l.Allow() {
		t.Fatal("should be empty")
	}
	clock.now = clock.now.Add(500 * time.Millisecond)
	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("expected allow after refill, call %d", i)
		}
	}
}

func TestAcquireBacksOffOnViolation(t *testing.T) {
	l, _ := newTestLimiter(LimiterOpts{Rate: 1, Burst: 1, MaxConcurrent: 2, BackoffFactor: 2, MaxBackoff: 30 * time.Second})
	ctx := context.Background()

	// First acquisition consumes the only token.
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	l.Release()

	// Second must record a violation and wait for refill via backoff.
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	l.Release()

	stats := l.Stats()
	if stats.Violations < 1 {
		t.Fatalf("expected at least one violation, got %d", stats.Violations)
	}
	if stats.Requests != 2 {
		t.Fatalf("expected 2 requests, got %d", stats.Requests)
	}
}

func TestAcquireBackToBackViolations(t *testing.T) {
	// R=1, B=1, three back-to-back acquisitions: first free, the next two
	// each record violations.
	l, _ := newTestLimiter(LimiterOpts{Rate: 1, Burst: 1, MaxConcurrent: 3, BackoffFactor: 2, MaxBackoff: 30 * time.Second})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		l.Release()
	}

	if got := l.Stats().Violations; got < 2 {
		t.Fatalf("expected violations >= 2, got %d", got)
	}
}

func TestAcquireRespectsMaxBackoff(t *testing.T) {
	l, clock := newTestLimiter(LimiterOpts{Rate: 0.5, Burst: 1, MaxConcurrent: 1, BackoffFactor: 3, MaxBackoff: 2 * time.Second})
	ctx := context.Background()
	start := clock.now

	for i := 0; i < 4; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		l.Release()
	}
	// With max backoff 2s and rate 0.5/s, 4 acquisitions cannot take more
	// than a handful of capped backoff rounds.
	if elapsed := clock.now.Sub(start); elapsed > 30*time.Second {
		t.Fatalf("backoff not bounded: elapsed %v", elapsed)
	}
}

func TestAcquireCancelled(t *testing.T) {
	l, _ := newTestLimiter(LimiterOpts{Rate: 0.001, Burst: 1, MaxConcurrent: 1})
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	l.Release()
	cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestSemaphoreBoundsConcurrentHolders(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1000, Burst: 1000, MaxConcurrent: 2})
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	blocked := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		blocked <- l.Acquire(ctx)
	}()
	if err := <-blocked; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("third holder should block until release, got %v", err)
	}
	l.Release()
	l.Release()
}

func TestResetClearsState(t *testing.T) {
	l, _ := newTestLimiter(LimiterOpts{Rate: 1, Burst: 2, MaxConcurrent: 1})
	l.Allow()
	l.Allow()
	l.Reset()
	if !l.Allow() {
		t.Fatal("expected token after reset")
	}
}

func TestCoordinatorDefaults(t *testing.T) {
	c := NewCoordinator(nil)
	for _, class := range []Class{ClassAPI, ClassPublic, ClassDownloads, ClassDatabase} {
		if c.Get(class) == nil {
			t.Fatalf("missing limiter for %s", class)
		}
	}
	if c.Get("bogus") != c.Get(ClassAPI) {
		t.Fatal("unknown class should fall back to api limiter")
	}
	stats := c.Stats()
	if len(stats) != 4 {
		t.Fatalf("expected 4 classes, got %d", len(stats))
	}
}

func TestCoordinatorOverride(t *testing.T) {
	c := NewCoordinator(map[Class]LimiterOpts{
		ClassAPI: {Rate: 100, Burst: 50, MaxConcurrent: 10},
	})
	if got := c.Get(ClassAPI).Stats().CurrentTokens; got != 50 {
		t.Fatalf("expected overridden burst 50, got %v", got)
	}
}

func TestLimiterWaitHookFires(t *testing.T) {
	l, _ := newTestLimiter(LimiterOpts{Rate: 10, Burst: 1, MaxConcurrent: 2})
	var waits int
	l.SetOnWait(func() { waits++ })

	for i := 0; i < 2; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatal(err)
		}
		l.Release()
	}
	if waits == 0 {
		t.Fatal("expected the wait hook to fire on an empty bucket")
	}
}

func TestCoordinatorWaitHookCarriesClass(t *testing.T) {
	c := NewCoordinator(map[Class]LimiterOpts{
		ClassAPI: {Rate: 10, Burst: 1, MaxConcurrent: 2},
	})
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := c.Get(ClassAPI)
	l.now = clock.Now
	l.sleep = clock.Sleep

	var got []Class
	c.OnWait(func(class Class) { got = append(got, class) })

	for i := 0; i < 2; i++ {
		if err := c.Acquire(context.Background(), ClassAPI); err != nil {
			t.Fatal(err)
		}
		l.Release()
	}
	if len(got) == 0 || got[0] != ClassAPI {
		t.Fatalf("wait classes: %v", got)
	}
}

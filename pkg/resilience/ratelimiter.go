// Package resilience provides the outbound-operation protection primitives:
// per-class token-bucket rate limiters with violation backoff, and a circuit
// breaker for repeatedly failing hosts.
package resilience

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

var ErrRateLimited = errors.New("rate limited")

// LimiterOpts configures a token-bucket limiter.
type LimiterOpts struct {
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the maximum number of tokens (bucket capacity).
	Burst int
	// MaxConcurrent caps simultaneous in-flight operations.
	MaxConcurrent int
	// BackoffFactor is the exponential base applied per consecutive violation.
	BackoffFactor float64
	// MaxBackoff bounds a single backoff sleep.
	MaxBackoff time.Duration
}

// LimiterStats is a snapshot of limiter activity.
type LimiterStats struct {
	Requests      int64         `json:"requests"`
	Violations    int64         `json:"violations"`
	TotalWait     time.Duration `json:"total_wait"`
	CurrentTokens float64       `json:"current_tokens"`
	InBackoff     bool          `json:"in_backoff"`
}

// Limiter is a token bucket with exponential backoff on violations and a
// semaphore bounding concurrent holders.
type Limiter struct {
	mu           sync.Mutex
	opts         LimiterOpts
	tokens       float64
	last         time.Time
	backoffUntil time.Time
	violations   int

	requests       int64
	violationTotal int64
	totalWait      time.Duration

	sem    chan struct{}
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
	onWait func()
}

// NewLimiter creates a limiter with a full bucket.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.BackoffFactor <= 1 {
		opts.BackoffFactor = 2
	}
	return &Limiter{
		opts:   opts,
		tokens: float64(opts.Burst),
		sem:    make(chan struct{}, opts.MaxConcurrent),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Acquire blocks until a token is obtained, then holds a semaphore slot
// until Release is called. Consecutive token shortfalls drive exponential
// backoff bounded by MaxBackoff.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	start := l.now()
	if err := l.waitForToken(ctx); err != nil {
		<-l.sem
		return err
	}

	l.mu.Lock()
	l.requests++
	l.totalWait += l.now().Sub(start)
	l.mu.Unlock()
	return nil
}

// SetOnWait registers f to run each time the limiter runs out of tokens and
// backs off. Used to surface wait counts to metrics.
func (l *Limiter) SetOnWait(f func()) {
	l.mu.Lock()
	l.onWait = f
	l.mu.Unlock()
}

// Release frees the semaphore slot taken by Acquire.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
	default:
	}
}

// Do runs f under the limiter.
func (l *Limiter) Do(ctx context.Context, f func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return f(ctx)
}

func (l *Limiter) waitForToken(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		if now.Before(l.backoffUntil) {
			wait := l.backoffUntil.Sub(now)
			l.mu.Unlock()
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		l.refill(now)
		if l.tokens >= 1 {
			l.tokens--
			l.violations = 0
			l.mu.Unlock()
			return nil
		}

		l.violations++
		l.violationTotal++
		backoff := time.Duration(math.Pow(l.opts.BackoffFactor, float64(l.violations)) * 0.1 * float64(time.Second))
		if l.opts.MaxBackoff > 0 && backoff > l.opts.MaxBackoff {
			backoff = l.opts.MaxBackoff
		}
		l.backoffUntil = now.Add(backoff)
		notify := l.onWait
		l.mu.Unlock()

		if notify != nil {
			notify()
		}

		if err := l.sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

// Allow is the non-blocking variant: take a token if available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Before(l.backoffUntil) {
		return false
	}
	l.refill(now)
	if l.tokens >= 1 {
		l.tokens--
		l.violations = 0
		l.requests++
		return true
	}
	return false
}

// refill adds tokens based on elapsed time. Must hold mu.
func (l *Limiter) refill(now time.Time) {
	if l.last.IsZero() {
		l.last = now
		return
	}
	elapsed := now.Sub(l.last).Seconds()
	l.tokens += elapsed * l.opts.Rate
	if l.tokens > float64(l.opts.Burst) {
		l.tokens = float64(l.opts.Burst)
	}
	l.last = now
}

// Stats returns a snapshot of limiter activity.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStats{
		Requests:      l.requests,
		Violations:    l.violationTotal,
		TotalWait:     l.totalWait,
		CurrentTokens: l.tokens,
		InBackoff:     l.now().Before(l.backoffUntil),
	}
}

// Reset refills the bucket and clears backoff state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = float64(l.opts.Burst)
	l.last = time.Time{}
	l.backoffUntil = time.Time{}
	l.violations = 0
}

package resilience

import (
	"context"
	"time"
)

// Class groups outbound operations that share a token bucket.
type Class string

const (
	ClassAPI       Class = "api"
	ClassPublic    Class = "public"
	ClassDownloads Class = "downloads"
	ClassDatabase  Class = "database"
)

// DefaultLimits are the per-class tunables.
var DefaultLimits = map[Class]LimiterOpts{
	ClassAPI:       {Rate: 1.4, Burst: 3, MaxConcurrent: 5, BackoffFactor: 2.0, MaxBackoff: 30 * time.Second},
	ClassPublic:    {Rate: 0.16, Burst: 2, MaxConcurrent: 3, BackoffFactor: 3.0, MaxBackoff: 60 * time.Second},
	ClassDownloads: {Rate: 2.0, Burst: 10, MaxConcurrent: 15, BackoffFactor: 1.5, MaxBackoff: 20 * time.Second},
	ClassDatabase:  {Rate: 10.0, Burst: 50, MaxConcurrent: 20, BackoffFactor: 1.2, MaxBackoff: 5 * time.Second},
}

// Coordinator owns the process-wide set of per-class limiters.
type Coordinator struct {
	limiters map[Class]*Limiter
}

// NewCoordinator creates limiters for every class. Entries in overrides
// replace the default tunables for that class.
func NewCoordinator(overrides map[Class]LimiterOpts) *Coordinator {
	limiters := make(map[Class]*Limiter, len(DefaultLimits))
	for class, opts := range DefaultLimits {
		if o, ok := overrides[class]; ok {
			opts = o
		}
		limiters[class] = NewLimiter(opts)
	}
	return &Coordinator{limiters: limiters}
}

// Get returns the limiter for a class. Unknown classes share the api limiter.
func (c *Coordinator) Get(class Class) *Limiter {
	if l, ok := c.limiters[class]; ok {
		return l
	}
	return c.limiters[ClassAPI]
}

// Acquire takes a token from the class limiter. Callers must Release on the
// same limiter; prefer Do for scoped use.
func (c *Coordinator) Acquire(ctx context.Context, class Class) error {
	return c.Get(class).Acquire(ctx)
}

// Do runs f under the class limiter.
func (c *Coordinator) Do(ctx context.Context, class Class, f func(context.Context) error) error {
	return c.Get(class).Do(ctx, f)
}

// OnWait registers f to run with the class name each time a limiter backs
// off waiting for tokens.
func (c *Coordinator) OnWait(f func(Class)) {
	for class, l := range c.limiters {
		class := class
		l.SetOnWait(func() { f(class) })
	}
}

// Stats snapshots every class limiter.
func (c *Coordinator) Stats() map[Class]LimiterStats {
	out := make(map[Class]LimiterStats, len(c.limiters))
	for class, l := range c.limiters {
		out[class] = l.Stats()
	}
	return out
}

// Reset clears all limiter state.
func (c *Coordinator) Reset() {
	for _, l := range c.limiters {
		l.Reset()
	}
}

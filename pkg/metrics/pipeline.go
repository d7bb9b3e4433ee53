package metrics

// Set is the application metric surface. Stages and subsystems record
// through it rather than inventing names ad hoc.
type Set struct {
	Registry *Registry

	RunsTotal      *Counter
	PostsAcquired  *Counter
	PostsFiltered  *Counter
	DownloadBytes  *Counter
	ActiveTargets  *Gauge
	StageDurations *Histogram
}

// NewSet registers the fixed application metrics on r.
func NewSet(r *Registry) *Set {
	return &Set{
		Registry:       r,
		RunsTotal:      r.Counter("lurk_runs_total", "Completed pipeline runs"),
		PostsAcquired:  r.Counter("lurk_posts_acquired_total", "Posts fetched across all targets"),
		PostsFiltered:  r.Counter("lurk_posts_filtered_total", "Posts removed by the filter chain"),
		DownloadBytes:  r.Counter("lurk_download_bytes_total", "Bytes written by content handlers"),
		ActiveTargets:  r.Gauge("lurk_active_targets", "Targets currently being acquired"),
		StageDurations: r.Histogram("lurk_stage_duration_seconds", "Wall time per pipeline stage", nil),
	}
}

// PostsProcessed returns the per-handler processed counter.
func (s *Set) PostsProcessed(handler string, success bool) *Counter {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	return s.Registry.Counter(
		WithLabels("lurk_posts_processed_total", "handler", handler, "outcome", outcome),
		"Posts dispatched to content handlers")
}

// Errors returns the per-kind error counter.
func (s *Set) Errors(kind string) *Counter {
	return s.Registry.Counter(
		WithLabels("lurk_errors_total", "kind", kind),
		"Structured errors by kind")
}

// RateLimitWaits returns the per-class limiter wait counter.
func (s *Set) RateLimitWaits(class string) *Counter {
	return s.Registry.Counter(
		WithLabels("lurk_ratelimit_waits_total", "class", class),
		"Token waits per rate-limit class")
}

// Exports returns the per-format export counter.
func (s *Set) Exports(format string) *Counter {
	return s.Registry.Counter(
		WithLabels("lurk_exports_total", "format", format),
		"Export files written by format")
}

// PoolWorkers returns the per-pool worker gauge.
func (s *Set) PoolWorkers(pool string) *Gauge {
	return s.Registry.Gauge(
		WithLabels("lurk_pool_workers", "pool", pool),
		"Current workers per pool")
}

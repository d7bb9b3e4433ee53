package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/engine/scrape"
	"github.com/lurkhq/lurk/pkg/events"
	"github.com/lurkhq/lurk/pkg/fn"
)

// BatchOpts tunes one acquisition batch.
type BatchOpts struct {
	MaxConcurrent int           // bounded to [1,20], default 3
	Timeout       time.Duration // per target, default 300s
	Delay         time.Duration // pause between target starts
	Retries       int           // extra attempts for retryable failures
	RetryDelay    time.Duration
	FailFast      bool
	PostLimit     int
}

func (o *BatchOpts) fill() {
	if o.MaxConcurrent < 1 {
		o.MaxConcurrent = 3
	}
	if o.MaxConcurrent > 20 {
		o.MaxConcurrent = 20
	}
	if o.Timeout <= 0 {
		o.Timeout = 300 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
}

// TargetResult is the per-target outcome.
type TargetResult struct {
	Target   domain.TargetInfo `json:"target"`
	Posts    []domain.PostRecord `json:"-"`
	Success  bool              `json:"success"`
	Err      error             `json:"-"`
	Duration time.Duration     `json:"duration"`
	Attempts int               `json:"attempts"`
}

// Engine fetches posts for resolved targets.
type Engine struct {
	scraper scrape.Scraper
	bus     *events.Bus
	logger  *slog.Logger

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

// NewEngine creates an Engine. The scraper may additionally implement
// scrape.AuthedScraper to serve saved/upvoted targets.
func NewEngine(s scrape.Scraper, bus *events.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{scraper: s, bus: bus, logger: logger, sleep: time.Sleep}
}

// Run processes all targets with bounded concurrency and error isolation.
// Results arrive in target-completion order. The returned error is non-nil
// only for batch-level failures (fail-fast abort or cancellation).
func (e *Engine) Run(ctx context.Context, targets []domain.TargetInfo, opts BatchOpts) ([]TargetResult, error) {
	if len(targets) == 0 {
		return nil, domain.NewRecord(domain.KindValidation, "no targets to acquire")
	}
	opts.fill()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, opts.MaxConcurrent)
	resultCh := make(chan TargetResult, len(targets))

	launched := 0
	for i, target := range targets {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && opts.Delay > 0 {
			e.sleep(opts.Delay)
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		launched++
		go func(t domain.TargetInfo) {
			defer func() { <-sem }()
			resultCh <- e.runTarget(ctx, t, opts)
		}(target)
	}

	results := make([]TargetResult, 0, launched)
	for i := 0; i < launched; i++ {
		res := <-resultCh
		results = append(results, res)
		if !res.Success && opts.FailFast {
			cancel()
		}
	}

	if opts.FailFast {
		for _, res := range results {
			if !res.Success {
				return results, domain.AsRecord(res.Err, "acquire").
					WithTarget(res.Target.Canonical())
			}
		}
	}
	return results, nil
}

// runTarget fetches one target with its own timeout and retry policy.
func (e *Engine) runTarget(ctx context.Context, target domain.TargetInfo, opts BatchOpts) TargetResult {
	start := time.Now()
	res := TargetResult{Target: target}

	tctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	attempts := 0
	outcome := fn.Retry(tctx, fn.RetryOpts{
		MaxAttempts: opts.Retries + 1,
		InitialWait: opts.RetryDelay,
		MaxWait:     opts.RetryDelay * 4,
		Retryable:   domain.Retryable,
		OnRetry: func(attempt int, err error) {
			e.logger.Warn("retrying target",
				"target", target.Canonical(), "attempt", attempt, "error", err)
		},
	}, func(ctx context.Context) fn.Result[[]domain.PostRecord] {
		attempts++
		posts, err := e.fetch(ctx, target, opts.PostLimit)
		return fn.FromPair(posts, err)
	})

	res.Attempts = attempts
	res.Duration = time.Since(start)

	posts, err := outcome.Unwrap()
	if err != nil {
		if tctx.Err() == context.DeadlineExceeded {
			err = domain.NewRecord(domain.KindNetwork,
				fmt.Sprintf("target %s timed out after %s", target.Canonical(), opts.Timeout)).
				WithTarget(target.Canonical())
		}
		res.Err = err
		e.logger.Warn("target failed",
			"target", target.Canonical(), "attempts", attempts, "error", err)
		return res
	}

	res.Posts = posts
	res.Success = true
	e.emitDiscovered(target, posts)
	return res
}

// fetch dispatches to the variant-specific scraper operation.
func (e *Engine) fetch(ctx context.Context, target domain.TargetInfo, limit int) ([]domain.PostRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	switch target.Kind {
	case domain.TargetUser:
		return e.scraper.UserPosts(ctx, target.Value, limit)
	case domain.TargetSubreddit:
		return e.scraper.SubredditPosts(ctx, target.Value, target.Listing, target.Period, limit)
	case domain.TargetSaved, domain.TargetUpvoted:
		authed, ok := e.scraper.(scrape.AuthedScraper)
		if !ok {
			return nil, domain.NewRecord(domain.KindValidation,
				string(target.Kind)+" feed requires authenticated credentials").
				WithTarget(target.Canonical())
		}
		if target.Kind == domain.TargetSaved {
			return authed.Saved(ctx, limit)
		}
		return authed.Upvoted(ctx, limit)
	case domain.TargetURL:
		post, err := e.scraper.PostByURL(ctx, target.Value)
		if err != nil {
			return nil, err
		}
		return []domain.PostRecord{*post}, nil
	default:
		return nil, domain.NewRecord(domain.KindValidation,
			"unresolvable target "+target.Original)
	}
}

func (e *Engine) emitDiscovered(target domain.TargetInfo, posts []domain.PostRecord) {
	if e.bus == nil {
		return
	}
	preview := make([]string, 0, 3)
	for _, p := range posts {
		if len(preview) == 3 {
			break
		}
		preview = append(preview, p.Title)
	}
	e.bus.Emit(events.TypePostDiscovered, events.PostDiscovered{
		Source:  "acquisition",
		Target:  target.Canonical(),
		Kind:    string(target.Kind),
		Count:   len(posts),
		Preview: preview,
	})
}

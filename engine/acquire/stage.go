package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/engine/pipeline"
	"github.com/lurkhq/lurk/internal/config"
	"github.com/lurkhq/lurk/pkg/metrics"
)

// StageName is the acquisition stage's registered name.
const StageName = "acquisition"

// Stage adapts the Engine to the pipeline contract.
type Stage struct {
	engine *Engine
	met    *metrics.Set
}

// NewStage wraps an Engine.
func NewStage(engine *Engine, met *metrics.Set) *Stage {
	return &Stage{engine: engine, met: met}
}

func (s *Stage) Name() string { return StageName }

// ValidateConfig checks acquisition tunables. Target presence is checked at
// run time because the targets file is read then.
func (s *Stage) ValidateConfig(cfg *config.Config) []error {
	var errs []error
	if cfg.ConcurrentTargets < 1 || cfg.ConcurrentTargets > 20 {
		errs = append(errs, domain.NewRecord(domain.KindConfiguration,
			fmt.Sprintf("concurrent_targets must be in [1,20], got %d", cfg.ConcurrentTargets)))
	}
	if cfg.PostLimit < 0 {
		errs = append(errs, domain.NewRecord(domain.KindConfiguration,
			fmt.Sprintf("post_limit must be >= 0, got %d", cfg.PostLimit)))
	}
	if !domain.ValidListing(cfg.ListingType) {
		errs = append(errs, domain.NewRecord(domain.KindConfiguration,
			"unknown listing_type "+cfg.ListingType))
	}
	return errs
}

// Process resolves targets, runs the batch, and appends all acquired posts
// to the run context in target-completion order. Per-target failures mark
// the result partial; only batch-level failures fail the stage.
func (s *Stage) Process(ctx context.Context, run *pipeline.Context) (*pipeline.StageResult, error) {
	cfg := run.Config
	result := pipeline.NewStageResult(StageName)
	result.Partial = true

	raws, err := cfg.AllTargets()
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, domain.NewRecord(domain.KindValidation,
			"no acquisition targets configured").WithStage(StageName)
	}
	if cfg.PostLimit == 0 {
		result.Warn("post_limit is 0; acquisition will return no posts")
	}

	targets, unresolved := ResolveAll(raws, cfg.ListingType, cfg.TimePeriod)
	for raw, rerr := range unresolved {
		result.AddError(domain.AsRecord(rerr, "resolve").WithTarget(raw))
	}
	run.Targets = targets

	var results []TargetResult
	if len(targets) > 0 {
		if s.met != nil {
			s.met.ActiveTargets.Set(int64(len(targets)))
			defer s.met.ActiveTargets.Set(0)
		}
		results, err = s.engine.Run(ctx, targets, BatchOpts{
			MaxConcurrent: cfg.ConcurrentTargets,
			Timeout:       cfg.Timeout,
			Delay:         cfg.SleepInterval,
			Retries:       cfg.Retries,
			RetryDelay:    cfg.RetryDelay,
			FailFast:      cfg.FailFast,
			PostLimit:     cfg.PostLimit,
		})
		if err != nil {
			return nil, err
		}
	}

	successful, failed := 0, 0
	durations := make(map[string]string, len(results))
	for _, tr := range results {
		durations[tr.Target.Canonical()] = tr.Duration.Round(time.Millisecond).String()
		if tr.Success {
			successful++
			run.Posts = append(run.Posts, tr.Posts...)
			continue
		}
		failed++
		result.AddError(domain.AsRecord(tr.Err, "acquire").
			WithTarget(tr.Target.Canonical()))
	}

	result.Processed = len(run.Posts)
	if s.met != nil {
		s.met.PostsAcquired.Add(int64(len(run.Posts)))
	}
	result.Data["targets_successful"] = successful
	result.Data["targets_failed"] = failed + len(unresolved)
	result.Data["target_durations"] = durations
	return result, nil
}

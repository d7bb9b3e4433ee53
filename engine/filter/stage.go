package filter

import (
	"context"
	"log/slog"

	"github.com/lurkhq/lurk/engine/pipeline"
	"github.com/lurkhq/lurk/internal/config"
	"github.com/lurkhq/lurk/pkg/metrics"
)

// StageName is the filter stage's registered name.
const StageName = "filter"

// Stage prunes the run's posts through the configured chain.
type Stage struct {
	met    *metrics.Set
	logger *slog.Logger
}

// NewStage creates the filter stage.
func NewStage(met *metrics.Set, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{met: met, logger: logger}
}

func (s *Stage) Name() string { return StageName }

func (s *Stage) ValidateConfig(cfg *config.Config) []error {
	return FromConfig(cfg, s.logger).Validate()
}

func (s *Stage) Process(ctx context.Context, run *pipeline.Context) (*pipeline.StageResult, error) {
	result := pipeline.NewStageResult(StageName)

	chain := FromConfig(run.Config, s.logger)
	if errs := chain.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}

	before := len(run.Posts)
	survivors, decisions, warnings := chain.Apply(run.Posts)
	run.Posts = survivors
	if s.met != nil {
		s.met.PostsFiltered.Add(int64(before - len(survivors)))
	}

	for _, w := range warnings {
		result.Warn("%s", w)
	}
	result.Processed = before
	result.Data["posts_before"] = before
	result.Data["posts_after"] = len(survivors)
	result.Data["removed"] = before - len(survivors)
	result.Data["decisions"] = decisions
	result.Data["filters"] = chain.Len()
	s.logger.Info("filter chain applied",
		"before", before, "after", len(survivors), "filters", chain.Len())
	return result, nil
}

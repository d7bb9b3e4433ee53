package pipeline

import (
	"context"

	"github.com/lurkhq/lurk/internal/config"
)

// Stage is one ordered step of a run.
type Stage interface {
	Name() string
	// ValidateConfig returns every configuration problem the stage can
	// detect before the run starts.
	ValidateConfig(cfg *config.Config) []error
	// Process does the stage's work against the shared context.
	Process(ctx context.Context, run *Context) (*StageResult, error)
}

// PreProcessor is implemented by stages that need setup before Process.
type PreProcessor interface {
	PreProcess(ctx context.Context, run *Context) error
}

// PostProcessor is implemented by stages that need teardown after Process.
type PostProcessor interface {
	PostProcess(ctx context.Context, run *Context, result *StageResult) error
}

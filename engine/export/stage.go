package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/engine/pipeline"
	"github.com/lurkhq/lurk/internal/config"
	"github.com/lurkhq/lurk/pkg/metrics"
)

// StageName is the export stage's registered name.
const StageName = "export"

// Stage writes the run's surviving posts in every configured format. One
// failing format does not stop the others.
type Stage struct {
	registry *Registry
	met      *metrics.Set
	logger   *slog.Logger
	now      func() time.Time
}

// NewStage creates the export stage.
func NewStage(registry *Registry, met *metrics.Set, logger *slog.Logger) *Stage {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{registry: registry, met: met, logger: logger, now: time.Now}
}

func (s *Stage) Name() string { return StageName }

func (s *Stage) ValidateConfig(cfg *config.Config) []error {
	var errs []error
	for _, f := range cfg.ExportFormats {
		if _, ok := s.registry.Lookup(f); !ok {
			errs = append(errs, domain.NewRecord(domain.KindConfiguration,
				"unknown export format "+f))
		}
	}
	errs = append(errs, ValidateOptions(cfg.ExportConfig)...)
	return errs
}

func (s *Stage) Process(ctx context.Context, run *pipeline.Context) (*pipeline.StageResult, error) {
	result := pipeline.NewStageResult(StageName)
	result.Partial = true

	cfg := run.Config
	dir := cfg.ExportDir
	if dir == "" {
		dir = cfg.OutputDir
	}
	now := s.now()

	var files []string
	var bytes int64
	for _, name := range cfg.ExportFormats {
		exp, ok := s.registry.Lookup(name)
		if !ok {
			result.AddError(domain.NewRecord(domain.KindConfiguration, "unknown export format "+name))
			continue
		}
		info := exp.Info()
		opts := OptionsFor(cfg.ExportConfig, info.Name)
		path := Filename(dir, cfg.ExportPrefix, info, opts.Compress, now)

		estimate := exp.EstimateSize(run.Posts)
		s.logger.Info("exporting",
			"format", info.Name, "posts", len(run.Posts),
			"estimated_size", humanize.Bytes(uint64(estimate)), "path", path)

		if err := exp.Export(ctx, run.Posts, path, opts); err != nil {
			result.AddError(domain.Wrap(domain.KindOf(err), "export "+info.Name, err))
			continue
		}
		result.Processed++
		files = append(files, path)
		if st, err := os.Stat(path); err == nil {
			bytes += st.Size()
		}
		if s.met != nil {
			s.met.Exports(info.Name).Inc()
		}
	}

	result.Data["files"] = files
	result.Data["formats"] = len(cfg.ExportFormats)
	result.Data["bytes_written"] = bytes
	result.Data["posts"] = len(run.Posts)
	if result.Failed > 0 && result.Processed == 0 {
		result.Partial = false
		result.Success = false
		return result, domain.NewRecord(domain.KindProcessing,
			fmt.Sprintf("all %d export formats failed", result.Failed))
	}
	s.logger.Info("export finished",
		"files", len(files), "bytes", humanize.Bytes(uint64(bytes)))
	return result, nil
}

var _ pipeline.Stage = (*Stage)(nil)

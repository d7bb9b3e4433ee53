package handler

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/engine/pipeline"
	"github.com/lurkhq/lurk/internal/config"
	"github.com/lurkhq/lurk/pkg/events"
	"github.com/lurkhq/lurk/pkg/metrics"
	"github.com/lurkhq/lurk/pkg/recovery"
	"github.com/lurkhq/lurk/pkg/workerpool"
)

// StageName is the processing stage's registered name.
const StageName = "processing"

// Stage dispatches each post to its content handler through the managed
// worker pools. Download-heavy content types run on the downloads pool,
// everything else on the processing pool.
type Stage struct {
	registry *Registry
	pools    *workerpool.Manager
	recov    *recovery.Manager
	met      *metrics.Set
	logger   *slog.Logger
}

// NewStage creates the processing stage.
func NewStage(registry *Registry, pools *workerpool.Manager, recov *recovery.Manager, met *metrics.Set, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	if recov == nil {
		recov = recovery.NewManager(logger, nil)
	}
	return &Stage{registry: registry, pools: pools, recov: recov, met: met, logger: logger}
}

func (s *Stage) Name() string { return StageName }

func (s *Stage) ValidateConfig(cfg *config.Config) []error {
	var errs []error
	if cfg.OutputDir == "" {
		errs = append(errs, domain.NewRecord(domain.KindConfiguration, "output_dir is required"))
	}
	if len(s.registry.Names()) == 0 {
		errs = append(errs, domain.NewRecord(domain.KindConfiguration, "no content handlers registered"))
	}
	return errs
}

// postOutcome is one post's dispatch record.
type postOutcome struct {
	index   int
	handler string
	ct      domain.ContentType
	skipped bool
	res     Result
}

func (s *Stage) Process(ctx context.Context, run *pipeline.Context) (*pipeline.StageResult, error) {
	result := pipeline.NewStageResult(StageName)
	result.Partial = true

	if run.Config.DryRun {
		result.Data["dry_run"] = true
		result.Data["skipped"] = len(run.Posts)
		s.logger.Info("dry run, posts not processed", "posts", len(run.Posts))
		return result, nil
	}

	cfg := Config{
		OutputDir:        run.Config.OutputDir,
		FilenameTemplate: run.Config.FilenameTemplate,
		EmbedMetadata:    run.Config.EmbedMetadata,
		CreateSidecars:   run.Config.CreateSidecars,
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, domain.Wrap(domain.KindFilesystem, "create output dir", err)
	}

	outcomes := make([]postOutcome, len(run.Posts))
	var wg sync.WaitGroup
	for i := range run.Posts {
		post := &run.Posts[i]
		ct := domain.DetectContentType(post)
		h, ok := s.registry.Select(post, ct)
		if !ok {
			outcomes[i] = postOutcome{index: i, ct: ct, skipped: true}
			result.Warn("no handler for post %s (content type %s), skipped", post.ID, ct)
			continue
		}
		outcomes[i] = postOutcome{index: i, ct: ct, handler: h.Name()}

		pool := workerpool.PoolProcessing
		switch ct {
		case domain.ContentImage, domain.ContentVideo, domain.ContentGallery:
			pool = workerpool.PoolDownloads
		}

		i := i
		handle, err := s.pools.Submit(ctx, pool, func(taskCtx context.Context) error {
			outcomes[i].res = s.dispatch(taskCtx, h, post, cfg, run)
			return nil
		})
		if err != nil {
			outcomes[i].res = Result{Success: false, Err: err}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if werr := handle.Wait(ctx); werr != nil && outcomes[i].res.Err == nil {
				outcomes[i].res = Result{Success: false, Err: werr}
			}
		}()
	}
	wg.Wait()

	var processed, failed, skipped int
	var bytes int64
	for _, o := range outcomes {
		if o.skipped {
			skipped++
			continue
		}
		post := &run.Posts[o.index]
		result.Processed++
		if o.res.Success {
			processed++
			post.Annotate(o.handler, o.res.Files...)
			post.Annotations.MetadataEmbedded = o.res.EmbeddedMeta
			for _, f := range o.res.Files {
				if st, err := os.Stat(f); err == nil {
					bytes += st.Size()
				}
			}
		} else {
			failed++
			result.AddError(o.res.Err)
		}
		if s.met != nil {
			s.met.PostsProcessed(o.handler, o.res.Success).Inc()
		}
		run.Bus.Emit(events.TypePostProcessed, events.PostProcessed{
			PostID:   post.ID,
			Handler:  o.handler,
			Success:  o.res.Success,
			Files:    len(o.res.Files),
			Duration: o.res.Duration,
		})
	}
	result.Failed = failed
	if s.met != nil && bytes > 0 {
		s.met.DownloadBytes.Add(bytes)
	}
	result.Data["succeeded"] = processed
	result.Data["failed"] = failed
	result.Data["skipped"] = skipped
	result.Data["bytes_written"] = bytes
	s.logger.Info("processing finished",
		"posts", len(run.Posts), "ok", processed, "failed", failed, "skipped", skipped)
	return result, nil
}

// dispatch runs one post through its handler, consulting the recovery
// manager on failure. A retry that succeeds counts as a success; the interim
// failure is still surfaced as a recoverable error event.
func (s *Stage) dispatch(ctx context.Context, h ContentHandler, post *domain.PostRecord, cfg Config, run *pipeline.Context) Result {
	cfg.Options = run.Config.HandlerConfig[h.Name()]
	res := h.Process(ctx, post, cfg)
	if res.Success || res.Err == nil {
		return res
	}

	outcome := s.recov.Recover(ctx, res.Err)
	if outcome.Strategy != recovery.StrategyRetry {
		return res
	}
	rec := domain.AsRecord(res.Err, "process "+post.ID)
	run.Bus.Emit(events.TypeErrorOccurred, events.ErrorOccurred{
		Kind:        rec.Kind.String(),
		Message:     rec.Message,
		Stage:       StageName,
		Recoverable: true,
	})
	s.logger.Warn("handler failed, retrying once",
		"handler", h.Name(), "post", post.ID, "error", res.Err)

	retried := h.Process(ctx, post, cfg)
	retried.Duration += res.Duration
	retried.Operations = append(retried.Operations, "retry after "+rec.Kind.String()+" error")
	return retried
}

var _ pipeline.Stage = (*Stage)(nil)

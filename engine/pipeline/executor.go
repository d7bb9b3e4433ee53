package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/internal/config"
	"github.com/lurkhq/lurk/pkg/events"
	"github.com/lurkhq/lurk/pkg/metrics"
	"github.com/lurkhq/lurk/pkg/recovery"
)

// Hook runs around execution or around a single stage. Hook failures are
// logged and never abort the run.
type Hook func(ctx context.Context, run *Context) error

// ExecutionMetrics aggregates one Execute call.
type ExecutionMetrics struct {
	StartTime        time.Time                `json:"start_time"`
	EndTime          time.Time                `json:"end_time"`
	Duration         time.Duration            `json:"duration"`
	TotalStages      int                      `json:"total_stages"`
	SuccessfulStages int                      `json:"successful_stages"`
	FailedStages     int                      `json:"failed_stages"`
	SkippedStages    int                      `json:"skipped_stages"`
	StageDurations   map[string]time.Duration `json:"stage_durations"`
	Errors           []error                  `json:"-"`
}

// ExecutorOpts configures an Executor.
type ExecutorOpts struct {
	Policy   string // halt | continue | skip
	Recovery *recovery.Manager
	Metrics  *metrics.Set
	Logger   *slog.Logger
}

// Executor owns the ordered stage list and drives one run at a time.
type Executor struct {
	mu      sync.Mutex
	running bool

	stages  []Stage
	policy  string
	rec     *recovery.Manager
	met     *metrics.Set
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time

	preHooks   []Hook
	postHooks  []Hook
	preStage   map[string][]Hook
	postStage  map[string][]Hook
}

// NewExecutor creates an Executor with no stages.
func NewExecutor(opts ExecutorOpts) *Executor {
	if opts.Policy == "" {
		opts.Policy = config.PolicyContinue
	}
	if opts.Recovery == nil {
		opts.Recovery = recovery.NewManager(opts.Logger, nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{
		policy:    opts.Policy,
		rec:       opts.Recovery,
		met:       opts.Metrics,
		logger:    opts.Logger,
		tracer:    otel.Tracer("lurk/pipeline"),
		now:       time.Now,
		preStage:  make(map[string][]Hook),
		postStage: make(map[string][]Hook),
	}
}

// AddStage appends a stage.
func (e *Executor) AddStage(s Stage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stages = append(e.stages, s)
}

// AddStageAt inserts a stage at position, clamped to the list bounds.
func (e *Executor) AddStageAt(s Stage, position int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if position < 0 {
		position = 0
	}
	if position > len(e.stages) {
		position = len(e.stages)
	}
	e.stages = slices.Insert(e.stages, position, s)
}

// RemoveStage removes the named stage. It reports whether anything changed.
func (e *Executor) RemoveStage(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.stages {
		if s.Name() == name {
			e.stages = slices.Delete(e.stages, i, i+1)
			return true
		}
	}
	return false
}

// Reorder rearranges stages to match names exactly.
func (e *Executor) Reorder(names []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(names) != len(e.stages) {
		return domain.NewRecord(domain.KindValidation,
			fmt.Sprintf("reorder lists %d names for %d stages", len(names), len(e.stages)))
	}
	byName := make(map[string]Stage, len(e.stages))
	for _, s := range e.stages {
		byName[s.Name()] = s
	}
	next := make([]Stage, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return domain.NewRecord(domain.KindValidation, "unknown stage "+n)
		}
		next = append(next, s)
		delete(byName, n)
	}
	e.stages = next
	return nil
}

// StageNames returns the current stage order.
func (e *Executor) StageNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.stages))
	for i, s := range e.stages {
		out[i] = s.Name()
	}
	return out
}

// OnPreExecute registers a global pre-execution hook.
func (e *Executor) OnPreExecute(h Hook) { e.preHooks = append(e.preHooks, h) }

// OnPostExecute registers a global post-execution hook.
func (e *Executor) OnPostExecute(h Hook) { e.postHooks = append(e.postHooks, h) }

// OnPreStage registers a hook before the named stage.
func (e *Executor) OnPreStage(name string, h Hook) {
	e.preStage[name] = append(e.preStage[name], h)
}

// OnPostStage registers a hook after the named stage.
func (e *Executor) OnPostStage(name string, h Hook) {
	e.postStage[name] = append(e.postStage[name], h)
}

// Execute runs every stage in order against run. It validates all stages
// before any runs, applies the error policy between stages, and aborts
// immediately on fatal error kinds.
func (e *Executor) Execute(ctx context.Context, run *Context) (*ExecutionMetrics, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, domain.NewRecord(domain.KindValidation, "pipeline is already running")
	}
	e.running = true
	stages := slices.Clone(e.stages)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	em := &ExecutionMetrics{
		StartTime:      e.now(),
		TotalStages:    len(stages),
		StageDurations: make(map[string]time.Duration, len(stages)),
	}
	finish := func() {
		em.EndTime = e.now()
		em.Duration = em.EndTime.Sub(em.StartTime)
	}

	if err := e.validate(stages, run.Config); err != nil {
		finish()
		return em, err
	}

	e.runHooks(ctx, run, e.preHooks, "pre-execute")

	ctx, span := e.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(attribute.Int("stages", len(stages))))
	defer span.End()

	var abort error
	for i, stage := range stages {
		err := e.runStage(ctx, run, stage, em)
		if err == nil {
			continue
		}
		em.Errors = append(em.Errors, err)

		kind := domain.KindOf(err)
		if kind.Fatal() {
			e.logger.Error("fatal stage error, aborting run",
				"stage", stage.Name(), "kind", kind.String(), "error", err)
			em.SkippedStages = len(stages) - i - 1
			abort = err
			break
		}
		switch e.policy {
		case config.PolicyHalt:
			em.SkippedStages = len(stages) - i - 1
			abort = err
		case config.PolicySkip:
			// Stop scheduling further stages but return cleanly.
			em.SkippedStages = len(stages) - i - 1
			e.logger.Warn("skipping remaining stages",
				"stage", stage.Name(), "remaining", em.SkippedStages)
		default:
			continue
		}
		break
	}

	e.runHooks(ctx, run, e.postHooks, "post-execute")
	finish()
	if e.met != nil && abort == nil {
		e.met.RunsTotal.Inc()
	}
	return em, abort
}

// validate rejects duplicate stage names and collects every stage-level
// configuration error before anything runs.
func (e *Executor) validate(stages []Stage, cfg *config.Config) error {
	seen := make(map[string]bool, len(stages))
	var problems []string
	for _, s := range stages {
		if seen[s.Name()] {
			problems = append(problems, "duplicate stage name "+s.Name())
			continue
		}
		seen[s.Name()] = true
		for _, err := range s.ValidateConfig(cfg) {
			problems = append(problems, s.Name()+": "+err.Error())
		}
	}
	if len(problems) == 0 {
		return nil
	}
	rec := domain.NewRecord(domain.KindConfiguration,
		fmt.Sprintf("%d validation problem(s): %s", len(problems), problems[0]))
	return rec.WithOp("pipeline.validate")
}

func (e *Executor) runStage(ctx context.Context, run *Context, stage Stage, em *ExecutionMetrics) error {
	name := stage.Name()
	run.Bus.Emit(events.TypeStageStarted, events.StageStarted{Name: name})
	e.runHooks(ctx, run, e.preStage[name], "pre-stage "+name)

	if pre, ok := stage.(PreProcessor); ok {
		if err := pre.PreProcess(ctx, run); err != nil {
			return e.failStage(run, stage, 0, em, domain.AsRecord(err, "pre_process").WithStage(name))
		}
	}

	sctx, span := e.tracer.Start(ctx, "stage."+name)
	start := e.now()
	result, err := stage.Process(sctx, run)
	if err != nil {
		rec := domain.AsRecord(err, "process").WithStage(name)
		if out := e.rec.Recover(sctx, rec); out.Strategy == recovery.StrategyRetry {
			e.logger.Warn("retrying stage after recoverable failure", "stage", name, "error", rec)
			run.Bus.Emit(events.TypeErrorOccurred, events.ErrorOccurred{
				Kind: rec.Kind.String(), Message: rec.Message, Stage: name, Recoverable: true,
			})
			result, err = stage.Process(sctx, run)
			if err != nil {
				rec = domain.AsRecord(err, "process").WithStage(name)
			}
		}
		if err != nil {
			span.End()
			return e.failStage(run, stage, e.now().Sub(start), em, rec)
		}
	}
	span.End()

	duration := e.now().Sub(start)
	if result == nil {
		result = NewStageResult(name)
	}
	result.Duration = duration
	em.StageDurations[name] = duration
	if e.met != nil {
		e.met.StageDurations.Observe(duration.Seconds())
	}
	if err := run.SetResult(name, result); err != nil {
		e.logger.Warn("stage result not recorded", "stage", name, "error", err)
	}

	if post, ok := stage.(PostProcessor); ok {
		if err := post.PostProcess(ctx, run, result); err != nil {
			e.logger.Warn("post_process failed", "stage", name, "error", err)
		}
	}
	e.runHooks(ctx, run, e.postStage[name], "post-stage "+name)

	if result.Success {
		em.SuccessfulStages++
		run.Bus.Emit(events.TypeStageCompleted, events.StageCompleted{
			Name:      name,
			Duration:  duration,
			Processed: result.Processed,
			Succeeded: result.Processed - result.Failed,
			Failed:    result.Failed,
			Data:      result.Data,
		})
		return nil
	}

	em.FailedStages++
	first := "stage reported failure"
	code := domain.KindProcessing.Code()
	if len(result.Errors) > 0 {
		first = result.Errors[0].Error()
		code = domain.KindOf(result.Errors[0]).Code()
	}
	run.Bus.Emit(events.TypeStageFailed, events.StageFailed{
		Name: name, Duration: duration, Error: first, ErrorCode: code,
	})
	if len(result.Errors) > 0 {
		return domain.AsRecord(result.Errors[0], "process").WithStage(name)
	}
	return domain.NewRecord(domain.KindProcessing, first).WithStage(name)
}

// failStage records bookkeeping for a stage that threw rather than returning
// a failed result.
func (e *Executor) failStage(run *Context, stage Stage, duration time.Duration, em *ExecutionMetrics, rec *domain.Record) error {
	name := stage.Name()
	em.FailedStages++
	em.StageDurations[name] = duration
	if e.met != nil {
		e.met.Errors(rec.Kind.String()).Inc()
	}

	result := NewStageResult(name)
	result.Duration = duration
	result.AddError(rec)
	if err := run.SetResult(name, result); err != nil {
		e.logger.Warn("stage result not recorded", "stage", name, "error", err)
	}

	run.Bus.Emit(events.TypeErrorOccurred, events.ErrorOccurred{
		Kind: rec.Kind.String(), Message: rec.Message, Stage: name,
		Recoverable: !rec.Kind.Fatal(),
	})
	run.Bus.Emit(events.TypeStageFailed, events.StageFailed{
		Name: name, Duration: duration, Error: rec.Message, ErrorCode: rec.Code,
	})
	return rec
}

func (e *Executor) runHooks(ctx context.Context, run *Context, hooks []Hook, label string) {
	for _, h := range hooks {
		if err := h(ctx, run); err != nil {
			e.logger.Warn("hook failed", "hook", label, "error", err)
		}
	}
}

// Package recovery maps structured error kinds to recovery strategies.
// Callers decide whether to re-invoke the failed operation; the manager only
// recommends and records.
package recovery

import (
	"context"
	"log/slog"

	"github.com/lurkhq/lurk/engine/domain"
)

// Strategy is the action recommended for a failure.
type Strategy string

const (
	StrategyRetry  Strategy = "retry"
	StrategySkip   Strategy = "skip"
	StrategyIgnore Strategy = "ignore"
	StrategyAbort  Strategy = "abort"
)

// Outcome reports what the manager decided.
type Outcome struct {
	Success  bool     `json:"success"`
	Strategy Strategy `json:"strategy_used"`
	Message  string   `json:"message"`
}

// Manager chooses strategies per error kind.
type Manager struct {
	logger    *slog.Logger
	overrides map[domain.Kind]Strategy
}

// NewManager creates a Manager. Entries in overrides replace the default
// strategy for that kind.
func NewManager(logger *slog.Logger, overrides map[domain.Kind]Strategy) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, overrides: overrides}
}

// StrategyFor returns the strategy for an error kind.
func (m *Manager) StrategyFor(kind domain.Kind) Strategy {
	if s, ok := m.overrides[kind]; ok {
		return s
	}
	switch kind {
	case domain.KindNetwork:
		return StrategyRetry
	case domain.KindConfiguration, domain.KindAuthentication:
		return StrategyAbort
	case domain.KindValidation, domain.KindTargetNotFound,
		domain.KindTargetAccessDenied, domain.KindUnsupportedFormat:
		return StrategySkip
	case domain.KindProcessing, domain.KindFilesystem:
		return StrategySkip
	default:
		return StrategyIgnore
	}
}

// Recover inspects err and returns the recommended outcome. Success is true
// for every strategy except abort.
func (m *Manager) Recover(ctx context.Context, err error) Outcome {
	rec := domain.AsRecord(err, "recover")
	strategy := m.StrategyFor(rec.Kind)

	m.logger.Log(ctx, levelFor(strategy), "recovery decision",
		"kind", rec.Kind.String(),
		"code", rec.Code,
		"strategy", string(strategy),
		"operation", rec.Context.Operation,
		"target", rec.Context.Target,
	)

	return Outcome{
		Success:  strategy != StrategyAbort,
		Strategy: strategy,
		Message:  rec.Message,
	}
}

func levelFor(s Strategy) slog.Level {
	switch s {
	case StrategyAbort:
		return slog.LevelError
	case StrategyIgnore:
		return slog.LevelDebug
	default:
		return slog.LevelWarn
	}
}

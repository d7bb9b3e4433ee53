// Package app assembles the pipeline: configuration, logging, the shared
// rate-limit coordinator, worker pools, event observers, session persistence,
// and the stage list. The cmd layer only parses flags and calls Run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lurkhq/lurk/engine/acquire"
	"github.com/lurkhq/lurk/engine/export"
	"github.com/lurkhq/lurk/engine/filter"
	"github.com/lurkhq/lurk/engine/handler"
	"github.com/lurkhq/lurk/engine/organize"
	"github.com/lurkhq/lurk/engine/pipeline"
	"github.com/lurkhq/lurk/engine/scrape"
	"github.com/lurkhq/lurk/engine/state"
	"github.com/lurkhq/lurk/internal/config"
	"github.com/lurkhq/lurk/pkg/audit"
	"github.com/lurkhq/lurk/pkg/events"
	"github.com/lurkhq/lurk/pkg/metrics"
	"github.com/lurkhq/lurk/pkg/plugin"
	"github.com/lurkhq/lurk/pkg/recovery"
	"github.com/lurkhq/lurk/pkg/resilience"
	"github.com/lurkhq/lurk/pkg/workerpool"
)

const userAgent = "lurk/1.0 (personal media archiver)"

// App owns every long-lived component of one process.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Bus    *events.Bus
	Stats  *events.StatsObserver
	Store  state.Store

	coord      *resilience.Coordinator
	pools      *workerpool.Manager
	handlers   *handler.Registry
	exporters  *export.Registry
	auditor    *audit.Auditor
	plugins    *plugin.Manager
	metricsSrv *metrics.Server
	met        *metrics.Set
	executor   *pipeline.Executor

	closers []func() error
}

// New builds and wires the application. The caller owns Shutdown.
func New(cfg *config.Config) (*App, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	logger, closeLog := newLogger(cfg.LogFile, cfg.Verbose)
	slog.SetDefault(logger)

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Bus:       events.NewBus(64, logger),
		Stats:     events.NewStatsObserver(),
		coord:     resilience.NewCoordinator(nil),
		handlers:  handler.NewRegistry(),
		exporters: export.NewRegistry(),
	}
	a.closers = append(a.closers, closeLog)
	a.Stats.Attach(a.Bus)

	console := events.NewConsoleObserver(os.Stdout, cfg.Verbose)
	console.Attach(a.Bus)

	if cfg.EventLogFile != "" {
		flog, err := events.NewFileLogObserver(cfg.EventLogFile)
		if err != nil {
			return nil, fmt.Errorf("event log: %w", err)
		}
		flog.Attach(a.Bus)
		a.closers = append(a.closers, flog.Close)
	}
	if cfg.NATSURL != "" {
		bridge, err := events.NewNATSBridge(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("event bridge unavailable, continuing without it", "error", err)
		} else {
			bridge.Attach(a.Bus)
			a.closers = append(a.closers, func() error { bridge.Close(); return nil })
		}
	}

	if cfg.AuditLog != "" {
		a.auditor = audit.NewAuditor(&audit.Options{Path: cfg.AuditLog})
		a.closers = append(a.closers, a.auditor.Close)
	}

	reg := metrics.New()
	a.met = metrics.NewSet(reg)
	a.coord.OnWait(func(class resilience.Class) {
		a.met.RateLimitWaits(string(class)).Inc()
	})
	if cfg.MetricsAddr != "" {
		a.metricsSrv = reg.NewServer(cfg.MetricsAddr, logger)
		a.metricsSrv.Start()
	}

	a.pools = workerpool.NewManager(workerpool.ManagerOpts{
		DownloadsMax: cfg.ConcurrentTargets * 5,
		Logger:       logger,
	})
	reg.OnScrape(func() {
		for name, pm := range a.pools.Metrics() {
			a.met.PoolWorkers(name).Set(int64(pm.ActiveWorkers))
		}
	})

	if cfg.SessionDB != "" {
		store, err := state.OpenSQLite(cfg.SessionDB, a.coord)
		if err != nil {
			return nil, err
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	} else {
		a.Store = state.Nop{}
	}

	scraper, err := a.newScraper()
	if err != nil {
		return nil, err
	}

	downloader := handler.NewDownloader(handler.DownloaderOpts{
		Coord:  a.coord,
		Logger: logger,
	})
	handler.Builtins(a.handlers, downloader, logger)
	if cfg.EnablePlugins && cfg.PluginDir != "" {
		a.plugins = plugin.NewManager(logger, a.auditor)
		loaded, err := a.plugins.Load(cfg.PluginDir)
		if err != nil {
			return nil, err
		}
		handler.RegisterPlugins(a.handlers, loaded, logger)
		a.closers = append(a.closers, func() error { a.plugins.Close(); return nil })
	}

	rec := recovery.NewManager(logger, nil)
	a.executor = pipeline.NewExecutor(pipeline.ExecutorOpts{
		Policy:   cfg.ErrorHandling,
		Recovery: rec,
		Metrics:  a.met,
		Logger:   logger,
	})
	a.executor.AddStage(acquire.NewStage(acquire.NewEngine(scraper, a.Bus, logger), a.met))
	a.executor.AddStage(filter.NewStage(a.met, logger))
	a.executor.AddStage(handler.NewStage(a.handlers, a.pools, rec, a.met, logger))
	if cfg.Organize {
		a.executor.AddStage(organize.NewStage(logger))
	}
	a.executor.AddStage(export.NewStage(a.exporters, a.met, logger))

	return a, nil
}

// newScraper picks the authenticated client when the full credential set is
// configured, the public listings otherwise.
func (a *App) newScraper() (scrape.Scraper, error) {
	if a.Config.HasCredentials() {
		client, err := scrape.NewOAuthClient(scrape.OAuthOpts{
			Credentials: scrape.Credentials{
				ClientID:     a.Config.ClientID,
				ClientSecret: a.Config.ClientSecret,
				Username:     a.Config.Username,
				Password:     a.Config.Password,
			},
			UserAgent: userAgent,
			Coord:     a.coord,
			Logger:    a.Logger,
		})
		if err != nil {
			return nil, err
		}
		a.Logger.Info("using authenticated api client", "username", a.Config.Username)
		if a.auditor != nil {
			a.auditor.Record(audit.SecurityEvent{
				Type:    audit.EventAuthSuccess,
				Actor:   a.Config.Username,
				Message: "oauth client configured",
			})
		}
		return client, nil
	}
	a.Logger.Info("using public json client")
	return scrape.NewPublicClient(scrape.PublicOpts{
		UserAgent: userAgent,
		Coord:     a.coord,
		Logger:    a.Logger,
	}), nil
}

// Run executes one full pipeline pass and persists the session outcome.
func (a *App) Run(ctx context.Context) error {
	run := pipeline.NewContext(a.Config, a.Bus)

	targets, err := a.Config.AllTargets()
	if err != nil {
		return err
	}
	if err := a.Store.CreateSession(ctx, run.SessionID, targets); err != nil {
		a.Logger.Warn("session not persisted", "error", err)
	}
	a.Logger.Info("run starting",
		"session", run.SessionID, "targets", len(targets), "dry_run", a.Config.DryRun)

	execMetrics, execErr := a.executor.Execute(ctx, run)

	status := state.StatusCompleted
	switch {
	case ctx.Err() != nil:
		status = state.StatusInterrupted
	case execErr != nil:
		status = state.StatusFailed
	}
	stats := a.Stats.Snapshot()
	meta := map[string]any{
		"status":          status,
		"posts_acquired":  stats.PostsAcquired,
		"posts_processed": stats.PostsProcessed,
		"errors":          stats.Errors,
	}
	if execMetrics != nil {
		meta["duration"] = execMetrics.Duration.String()
		meta["stages_failed"] = execMetrics.FailedStages
	}
	bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Store.SetMetadata(bg, run.SessionID, meta); err != nil {
		a.Logger.Warn("session metadata not persisted", "error", err)
	}
	if err := a.Store.UpdateSessionStatus(bg, run.SessionID, status); err != nil {
		a.Logger.Warn("session status not persisted", "error", err)
	}

	a.Bus.Emit(events.TypeStatistics, stats)
	a.Stats.Render(os.Stdout)
	a.Logger.Info("run finished", "session", run.SessionID, "status", status)
	return execErr
}

// Shutdown stops every component, draining pools and flushing logs.
func (a *App) Shutdown(ctx context.Context) {
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.Logger.Warn("metrics server shutdown", "error", err)
		}
	}
	if a.pools != nil {
		if err := a.pools.Shutdown(ctx); err != nil {
			a.Logger.Warn("worker pool shutdown", "error", err)
		}
	}
	a.Bus.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("shutdown", "error", err)
		}
	}
}

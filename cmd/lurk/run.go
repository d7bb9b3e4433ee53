package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lurkhq/lurk/engine/app"
	"github.com/lurkhq/lurk/internal/config"
)

func newRunCmd() *cobra.Command {
	var (
		targets  []string
		dryRun   bool
		failFast bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "run [targets...]",
		Short: "Run the acquisition pipeline",
		Long:  "Run acquires posts from every configured target, applies the filter chain, dispatches content handlers, and exports the result. Targets given as arguments are added to the configured set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Targets = append(cfg.Targets, targets...)
			cfg.Targets = append(cfg.Targets, args...)
			if dryRun {
				cfg.DryRun = true
			}
			if failFast {
				cfg.FailFast = true
			}
			if limit > 0 {
				cfg.PostLimit = limit
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runErr := a.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			a.Shutdown(shutdownCtx)
			return runErr
		},
	}
	cmd.Flags().StringSliceVarP(&targets, "target", "t", nil, "additional target (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "acquire and filter but skip downloads")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "abort the batch on the first target failure")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "posts per target (overrides config)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagVerbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

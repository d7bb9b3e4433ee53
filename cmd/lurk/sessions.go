package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lurkhq/lurk/engine/state"
)

func newSessionsCmd() *cobra.Command {
	var maxDays int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List resumable sessions",
		Long:  "Sessions lists runs that were interrupted or are still marked running in the session database, newest first.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.SessionDB == "" {
				return fmt.Errorf("no session_db configured")
			}
			if maxDays <= 0 {
				maxDays = cfg.ResumeMaxDays
			}

			store, err := state.OpenSQLite(cfg.SessionDB, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.FindResumable(cmd.Context(),
				time.Duration(maxDays)*24*time.Hour)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("no resumable sessions")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Session", "Status", "Targets", "Updated"})
			for _, s := range sessions {
				tw.AppendRow(table.Row{
					s.ID, s.Status,
					strings.Join(s.Targets, ", "),
					humanize.Time(s.UpdatedAt),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDays, "max-days", 0, "only sessions updated within this many days")
	return cmd
}

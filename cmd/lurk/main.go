// Command lurk acquires, filters, processes, and exports media from public
// and authenticated feeds.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "lurk",
		Short:         "Personal media acquisition pipeline",
		Long:          "lurk pulls posts from configured targets, filters them, downloads their media, and exports the batch in one or more archive formats.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default ./lurk.yaml)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging and per-post events")

	root.AddCommand(newRunCmd())
	root.AddCommand(newFormatsCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("lurk %s (%s)\n", version, commit)
		},
	}
}

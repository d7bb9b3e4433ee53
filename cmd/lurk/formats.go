package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lurkhq/lurk/engine/export"
)

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List available export formats",
		Run: func(*cobra.Command, []string) {
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Format", "Extension", "Streaming", "Incremental", "Compression", "Description"})
			for _, info := range export.NewRegistry().Formats() {
				tw.AppendRow(table.Row{
					info.Name, info.Extension,
					yesNo(info.SupportsStreaming),
					yesNo(info.SupportsIncremental),
					yesNo(info.SupportsCompression),
					info.Description,
				})
			}
			tw.Render()
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sells-group/landcover/internal/pipeline"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Build the final tables from yearly summary CSVs",
	Long: `Reads one YYYY_*_summary.csv per year from the summary directory, sums areas
by canonical category and by impervious/pervious class, interpolates every
district over the configured years, and writes the merged land_info table.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd, "summarize", func(ctx context.Context, p *pipeline.Pipeline) (any, error) {
			return p.Summarize(ctx)
		})
	},
}

func init() {
	addPipelineFlags(summarizeCmd.Flags())
	rootCmd.AddCommand(summarizeCmd)
}

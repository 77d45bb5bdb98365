package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sells-group/landcover/internal/pipeline"
)

var clipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Clip land-cover layers to district boundaries",
	Long: `Intersects every YYYY_*.shp layer in the layer directory with the district
boundary layer, recomputes parcel areas, and writes <name>_intersected.shp and
<name>_summary.csv to the output directory.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd, "clip", func(ctx context.Context, p *pipeline.Pipeline) (any, error) {
			return p.Clip(ctx)
		})
	},
}

func init() {
	addPipelineFlags(clipCmd.Flags())
	rootCmd.AddCommand(clipCmd)
}

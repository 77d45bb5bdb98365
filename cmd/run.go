package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landcover/internal/monitoring"
	"github.com/sells-group/landcover/internal/pipeline"
	"github.com/sells-group/landcover/internal/taxonomy"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Clip every layer, then build the final tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd, "run", func(ctx context.Context, p *pipeline.Pipeline) (any, error) {
			return p.Run(ctx)
		})
	},
}

// runStage validates the config for mode, builds a pipeline, runs fn, and
// reports the outcome on stdout. Metrics are exported even when fn fails.
func runStage(cmd *cobra.Command, mode string, fn func(context.Context, *pipeline.Pipeline) (any, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(mode); err != nil {
		return err
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	p := pipeline.New(cfg, st, taxonomy.NewNormalizer(taxTable))
	log := zap.L().With(zap.String("command", mode), zap.String("run_id", p.RunID()))
	log.Info("starting")

	res, err := fn(ctx, p)
	writeMetrics(cfg, p.Report())
	if err != nil {
		return eris.Wrapf(err, "%s", mode)
	}

	snap := p.Report().Snapshot()
	log.Info("complete",
		zap.Int("clipped", snap.Processed(monitoring.StageClip)),
		zap.Int("summarized", snap.Processed(monitoring.StageSummarize)),
		zap.Int("skipped", snap.SkippedTotal()),
		zap.Int("mismatches", snap.Mismatches),
		zap.Duration("elapsed", snap.Duration),
	)

	return printJSON(os.Stdout, struct {
		Result any                 `json:"result"`
		Report monitoring.Snapshot `json:"report"`
	}{res, snap})
}

func init() {
	addPipelineFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landcover/internal/config"
	"github.com/sells-group/landcover/internal/taxonomy"
)

var (
	cfg *config.Config
	// taxTable is the taxonomy in effect for the current command.
	taxTable taxonomy.Table
)

var rootCmd = &cobra.Command{
	Use:   "landcover",
	Short: "District land-cover and imperviousness time series",
	Long:  "Clips yearly land-cover surveys to administrative districts, reconciles their codes into one taxonomy, and builds interpolated per-district area and imperviousness tables.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		return setup(cmd, c)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// setup layers command-line overrides onto c, starts the logger and loads
// the taxonomy table. Pipeline flags only exist on run, clip and summarize.
func setup(cmd *cobra.Command, c *config.Config) error {
	fs := cmd.Flags()
	if fs.Lookup("boundary") != nil {
		applyPipelineFlags(fs, c)
	}
	if fs.Changed("taxonomy-file") {
		c.Taxonomy.Path, _ = fs.GetString("taxonomy-file")
	}
	if fs.Changed("log-level") {
		c.Log.Level, _ = fs.GetString("log-level")
	}

	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}

	t, err := loadTaxonomy(c)
	if err != nil {
		return err
	}

	cfg, taxTable = c, t
	zap.L().Debug("config loaded",
		zap.String("command", cmd.Name()),
		zap.String("taxonomy", c.Taxonomy.Path),
		zap.Int("categories", len(t.Order)),
	)
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("taxonomy-file", "", "YAML taxonomy table overriding the built-in one")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/landcover/internal/config"
	"github.com/sells-group/landcover/internal/monitoring"
	"github.com/sells-group/landcover/internal/store"
	"github.com/sells-group/landcover/internal/taxonomy"
)

const defaultSQLitePath = "landcover.db"

// addPipelineFlags registers the flags shared by run, clip and summarize.
// Values given on the command line override the loaded config.
func addPipelineFlags(fs *pflag.FlagSet) {
	fs.String("boundary", "", "district boundary shapefile")
	fs.String("layers", "", "directory of YYYY_*.shp land-cover layers")
	fs.String("summaries", "", "directory of YYYY_*_summary.csv files")
	fs.String("out", "", "output directory")
	fs.Int("start", 0, "first year of the output series")
	fs.Int("end", 0, "last year of the output series")
	fs.Int("concurrency", 0, "files processed in parallel")
	fs.Bool("xlsx", false, "also write an xlsx workbook")
}

// applyPipelineFlags copies every changed flag into c.
func applyPipelineFlags(fs *pflag.FlagSet, c *config.Config) {
	if fs.Changed("boundary") {
		c.Input.BoundaryPath, _ = fs.GetString("boundary")
	}
	if fs.Changed("layers") {
		c.Input.LayerDir, _ = fs.GetString("layers")
	}
	if fs.Changed("summaries") {
		c.Input.SummaryDir, _ = fs.GetString("summaries")
	}
	if fs.Changed("out") {
		c.Output.Dir, _ = fs.GetString("out")
	}
	if fs.Changed("start") {
		c.Pipeline.StartYear, _ = fs.GetInt("start")
	}
	if fs.Changed("end") {
		c.Pipeline.EndYear, _ = fs.GetInt("end")
	}
	if fs.Changed("concurrency") {
		c.Pipeline.Concurrency, _ = fs.GetInt("concurrency")
	}
	if fs.Changed("xlsx") {
		c.Output.XLSX, _ = fs.GetBool("xlsx")
	}
}

// loadTaxonomy returns the configured taxonomy table, or the built-in one.
func loadTaxonomy(c *config.Config) (taxonomy.Table, error) {
	if c.Taxonomy.Path == "" {
		return taxonomy.DefaultTable(), nil
	}
	t, err := taxonomy.LoadTable(c.Taxonomy.Path)
	if err != nil {
		return taxonomy.Table{}, eris.Wrap(err, "load taxonomy")
	}
	return t, nil
}

// initStore opens and migrates the configured store. It returns nil when
// persistence is disabled.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	dsn := c.Store.DatabaseURL
	if c.Store.Driver == "sqlite" && dsn == "" {
		dsn = defaultSQLitePath
	}

	st, err := store.Open(ctx, c.Store.Driver, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if st == nil {
		return nil, nil
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// writeMetrics exports the run report when a textfile path is configured.
// A failed export is logged, not returned.
func writeMetrics(c *config.Config, r *monitoring.Report) {
	if c.Metrics.TextfilePath == "" {
		return
	}
	if err := monitoring.WriteTextfile(c.Metrics.TextfilePath, r.Snapshot()); err != nil {
		zap.L().Warn("metrics textfile not written", zap.Error(err))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

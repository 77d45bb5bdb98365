package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landcover/internal/aggregate"
	"github.com/sells-group/landcover/internal/config"
	"github.com/sells-group/landcover/internal/merge"
	"github.com/sells-group/landcover/internal/monitoring"
	"github.com/sells-group/landcover/internal/tabular"
	"github.com/sells-group/landcover/internal/taxonomy"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "clip", "summarize", "verify", "taxonomy"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "landcover", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestPipelineCommands_Flags(t *testing.T) {
	for _, cmd := range []string{"run", "clip", "summarize"} {
		c, _, err := rootCmd.Find([]string{cmd})
		require.NoError(t, err)
		for _, flag := range []string{"boundary", "layers", "summaries", "out", "start", "end", "concurrency", "xlsx"} {
			assert.NotNil(t, c.Flags().Lookup(flag), "%s should have --%s flag", cmd, flag)
		}
	}
}

func TestVerifyCommand_Flags(t *testing.T) {
	for _, flag := range []string{"tolerance", "sheet", "strict"} {
		assert.NotNil(t, verifyCmd.Flags().Lookup(flag), "verify should have --%s flag", flag)
	}
}

func TestApplyPipelineFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addPipelineFlags(fs)
	require.NoError(t, fs.Parse([]string{"--out", "/tmp/out", "--end", "2020", "--xlsx"}))

	c := &config.Config{
		Input:    config.InputConfig{LayerDir: "temp"},
		Pipeline: config.PipelineConfig{StartYear: 2000, EndYear: 2024},
		Output:   config.OutputConfig{Dir: "out"},
	}
	applyPipelineFlags(fs, c)

	assert.Equal(t, "/tmp/out", c.Output.Dir)
	assert.Equal(t, 2020, c.Pipeline.EndYear)
	assert.True(t, c.Output.XLSX)
	assert.Equal(t, 2000, c.Pipeline.StartYear)
	assert.Equal(t, "temp", c.Input.LayerDir)
}

func setupCommand(t *testing.T, pipelineFlags bool, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	if pipelineFlags {
		addPipelineFlags(cmd.Flags())
	}
	cmd.Flags().String("taxonomy-file", "", "")
	cmd.Flags().String("log-level", "", "")
	require.NoError(t, cmd.ParseFlags(args))

	prevCfg, prevTable := cfg, taxTable
	t.Cleanup(func() { cfg, taxTable = prevCfg, prevTable })
	return cmd
}

func TestSetup_AppliesOverrides(t *testing.T) {
	out := t.TempDir()
	cmd := setupCommand(t, true, "--out", out, "--start", "2005", "--log-level", "debug")

	c := &config.Config{
		Pipeline: config.PipelineConfig{StartYear: 2000, EndYear: 2024},
		Output:   config.OutputConfig{Dir: "out"},
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
	require.NoError(t, setup(cmd, c))

	assert.Same(t, c, cfg)
	assert.Equal(t, out, cfg.Output.Dir)
	assert.Equal(t, 2005, cfg.Pipeline.StartYear)
	assert.Equal(t, 2024, cfg.Pipeline.EndYear)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, taxonomy.DefaultTable().Order, taxTable.Order)
}

func TestSetup_WithoutPipelineFlags(t *testing.T) {
	cmd := setupCommand(t, false)
	c := &config.Config{Output: config.OutputConfig{Dir: "out"}, Log: config.LogConfig{Level: "info"}}
	require.NoError(t, setup(cmd, c))
	assert.Equal(t, "out", cfg.Output.Dir)
}

func TestSetup_Errors(t *testing.T) {
	cmd := setupCommand(t, false, "--taxonomy-file", filepath.Join(t.TempDir(), "nope.yaml"))
	err := setup(cmd, &config.Config{Log: config.LogConfig{Level: "info"}})
	require.Error(t, err)

	cmd = setupCommand(t, false, "--log-level", "loud")
	err = setup(cmd, &config.Config{})
	require.Error(t, err)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, flag := range []string{"taxonomy-file", "log-level"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "root should have --%s flag", flag)
	}
}

func TestLoadTaxonomy_Default(t *testing.T) {
	table, err := loadTaxonomy(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, taxonomy.DefaultTable().Order, table.Order)
}

func TestLoadTaxonomy_MissingFile(t *testing.T) {
	_, err := loadTaxonomy(&config.Config{Taxonomy: config.TaxonomyConfig{Path: filepath.Join(t.TempDir(), "nope.yaml")}})
	assert.Error(t, err)
}

func TestInitStore_Disabled(t *testing.T) {
	st, err := initStore(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "none"}})
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestInitStore_SQLite(t *testing.T) {
	c := &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "lc.db")}}
	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.NoError(t, st.Close())
}

func TestWriteMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lc.prom")
	c := &config.Config{Metrics: config.MetricsConfig{TextfilePath: path}}
	writeMetrics(c, monitoring.NewReport("r"))
	assert.FileExists(t, path)

	writeMetrics(&config.Config{}, monitoring.NewReport("r"))
}

func writeLandInfo(t *testing.T, path string, recs []merge.Record) {
	t.Helper()
	categories := []string{string(taxonomy.Residential), string(taxonomy.Forest)}
	rep := merge.Validate(recs, 0.01)
	require.NoError(t, tabular.WriteCSV(path, merge.Table(recs, categories, rep, 2, 4)))
}

func TestVerifyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "land_info.csv")
	writeLandInfo(t, path, []merge.Record{
		{District: "강남구", Year: 2000, Categories: []float64{60, 40}, Total: 100},
		{District: "강남구", Year: 2001, Categories: []float64{60, 30}, Total: 100},
	})

	rep, present, err := verifyFile(context.Background(), path, "", taxonomy.DefaultTable(), 0.01)
	require.NoError(t, err)
	assert.Equal(t, []string{"residential", "forest"}, present)
	assert.Equal(t, 2, rep.Rows)
	assert.Equal(t, 1, rep.Mismatches)
	assert.InDelta(t, 10, rep.MaxDiff, 1e-9)
	require.Len(t, rep.Worst, 1)
	assert.Equal(t, 2001, rep.Worst[0].Year)
}

func TestVerifyFile_XLSX(t *testing.T) {
	dir := t.TempDir()
	categories := []string{string(taxonomy.Residential)}
	recs := []merge.Record{{District: "종로구", Year: 2010, Categories: []float64{5}, Total: 5}}
	tbl := merge.Table(recs, categories, merge.Validate(recs, 0.01), 2, 4)
	path := filepath.Join(dir, "land_info.xlsx")
	require.NoError(t, tabular.WriteXLSX(path, tabular.Sheet{Name: "land_info", Table: tbl, Numeric: merge.NumericColumns(categories)}))

	rep, _, err := verifyFile(context.Background(), path, "", taxonomy.DefaultTable(), 0.01)
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Equal(t, 1, rep.Rows)
}

func TestVerifyFile_MissingTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, tabular.WriteCSV(path, &tabular.Table{
		Header: []string{aggregate.ColYear, aggregate.ColDistrict, "residential"},
		Rows:   [][]string{{"2000", "강남구", "1"}},
	}))

	_, _, err := verifyFile(context.Background(), path, "", taxonomy.DefaultTable(), 0.01)
	assert.Error(t, err)
}

func TestFormatVerifyReport(t *testing.T) {
	var buf bytes.Buffer
	formatVerifyReport(&buf, "land_info.csv", []string{"residential"}, merge.Report{Rows: 3, Tolerance: 0.01})
	assert.Contains(t, buf.String(), "all rows match")

	buf.Reset()
	formatVerifyReport(&buf, "land_info.csv", []string{"residential"}, merge.Report{
		Rows:       3,
		Mismatches: 1,
		MaxDiff:    12.5,
		Tolerance:  0.01,
		Worst:      []merge.Mismatch{{District: "마포구", Year: 2012, CategorySum: 87.5, Total: 100, Diff: 12.5}},
	})
	out := buf.String()
	assert.Contains(t, out, "mismatches: 1")
	assert.Contains(t, out, "마포구")
	assert.Contains(t, out, "12.5000")
}

func TestFormatClassifications(t *testing.T) {
	var buf bytes.Buffer
	formatClassifications(&buf,
		taxonomy.NewNormalizer(taxonomy.DefaultTable()),
		aggregate.NewImperviousCodes(config.DefaultImperviousCodes),
		[]string{"111", "230", "310", "abc"},
	)
	out := buf.String()
	assert.Regexp(t, `111\s+111\s+110\s+residential\s+true`, out)
	assert.Regexp(t, `230\s+230\s+230\s+agriculture\s+true`, out)
	assert.Regexp(t, `310\s+310\s+310\s+forest\s+false`, out)
	assert.Regexp(t, `abc\s+-\s+0\s+unknown\s+false`, out)
}

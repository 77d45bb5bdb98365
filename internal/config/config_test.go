package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "SIGUNGU_NM", cfg.Input.DistrictField)
	assert.Equal(t, "AREA_M2", cfg.Input.AreaField)
	assert.Equal(t, "*_add_area.shp", cfg.Input.LayerPattern)
	assert.Equal(t, "*_summary.csv", cfg.Input.SummaryPattern)
	assert.Equal(t, "utf-8", cfg.Input.DBFEncoding)
	assert.Equal(t, 2000, cfg.Pipeline.StartYear)
	assert.Equal(t, 2024, cfg.Pipeline.EndYear)
	assert.InDelta(t, 0.01, cfg.Pipeline.Tolerance, 1e-9)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, DefaultImperviousCodes, cfg.Pipeline.ImperviousCodes)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.False(t, cfg.Output.XLSX)
	assert.Equal(t, 2, cfg.Output.AreaDecimals)
	assert.Equal(t, 4, cfg.Output.RatioDecimals)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, 5179, cfg.Store.SRID)
	assert.Equal(t, 3, cfg.Store.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Store.RetryBackoff)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
input:
  boundary_path: bnd/bnd_sigungu_11.shp
  dbf_encoding: euc-kr
pipeline:
  start_year: 2005
  impervious_codes: [110, 120]
store:
  driver: sqlite
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bnd/bnd_sigungu_11.shp", cfg.Input.BoundaryPath)
	assert.Equal(t, "euc-kr", cfg.Input.DBFEncoding)
	assert.Equal(t, 2005, cfg.Pipeline.StartYear)
	assert.Equal(t, []int{110, 120}, cfg.Pipeline.ImperviousCodes)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 2024, cfg.Pipeline.EndYear)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LANDCOVER_STORE_DRIVER", "postgres")
	t.Setenv("LANDCOVER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("LANDCOVER_PIPELINE_END_YEAR", "2030")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2030, cfg.Pipeline.EndYear)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Input.DistrictField = "SIGUNGU_NM"
	cfg.Pipeline.StartYear = 2000
	cfg.Pipeline.EndYear = 2024
	cfg.Pipeline.Tolerance = 0.01
	cfg.Store.Driver = "none"
	return cfg
}

func TestValidateClip_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.BoundaryPath = "bnd.shp"
	cfg.Input.LayerDir = "temp"

	assert.NoError(t, cfg.Validate("clip"))
}

func TestValidateRun_MissingBoundary(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.LayerDir = "temp"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.boundary_path is required")
}

func TestValidateSummarize_MissingDir(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("summarize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.summary_dir is required")
}

func TestValidate_InvertedYearRange(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.SummaryDir = "summaries"
	cfg.Pipeline.StartYear = 2025

	err := cfg.Validate("summarize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_year")
}

func TestValidate_StoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.SummaryDir = "summaries"

	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate("summarize"))

	cfg.Store.Driver = "postgres"
	err := cfg.Validate("summarize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")

	cfg.Store.Driver = "mongo"
	err = cfg.Validate("summarize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

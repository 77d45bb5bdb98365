package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Taxonomy TaxonomyConfig `yaml:"taxonomy" mapstructure:"taxonomy"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the survey corpus and the boundary layer.
type InputConfig struct {
	BoundaryPath   string `yaml:"boundary_path" mapstructure:"boundary_path"`
	DistrictField  string `yaml:"district_field" mapstructure:"district_field"`
	AreaField      string `yaml:"area_field" mapstructure:"area_field"`
	LayerDir       string `yaml:"layer_dir" mapstructure:"layer_dir"`
	LayerPattern   string `yaml:"layer_pattern" mapstructure:"layer_pattern"`
	SummaryDir     string `yaml:"summary_dir" mapstructure:"summary_dir"`
	SummaryPattern string `yaml:"summary_pattern" mapstructure:"summary_pattern"`
	DBFEncoding    string `yaml:"dbf_encoding" mapstructure:"dbf_encoding"`
}

// TaxonomyConfig points at an optional taxonomy table file. Empty means the
// built-in table.
type TaxonomyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig configures the year range, validation and parallelism.
type PipelineConfig struct {
	StartYear       int     `yaml:"start_year" mapstructure:"start_year"`
	EndYear         int     `yaml:"end_year" mapstructure:"end_year"`
	Tolerance       float64 `yaml:"tolerance" mapstructure:"tolerance"`
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	ImperviousCodes []int   `yaml:"impervious_codes" mapstructure:"impervious_codes"`
}

// OutputConfig configures where and how result tables are written.
type OutputConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	XLSX          bool   `yaml:"xlsx" mapstructure:"xlsx"`
	AreaDecimals  int    `yaml:"area_decimals" mapstructure:"area_decimals"`
	RatioDecimals int    `yaml:"ratio_decimals" mapstructure:"ratio_decimals"`
}

// StoreConfig configures the optional database sink.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// SRID tags persisted parcel geometries.
	SRID int `yaml:"srid" mapstructure:"srid"`
	// Transient write failures are retried with exponential backoff.
	RetryAttempts int           `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultImperviousCodes are the mid-level codes counted as sealed surface:
// the six urban classes plus facility cultivation (230).
var DefaultImperviousCodes = []int{110, 120, 130, 140, 150, 160, 230}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LANDCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.district_field", "SIGUNGU_NM")
	v.SetDefault("input.area_field", "AREA_M2")
	v.SetDefault("input.layer_dir", "temp")
	v.SetDefault("input.layer_pattern", "*_add_area.shp")
	v.SetDefault("input.summary_pattern", "*_summary.csv")
	v.SetDefault("input.dbf_encoding", "utf-8")
	v.SetDefault("pipeline.start_year", 2000)
	v.SetDefault("pipeline.end_year", 2024)
	v.SetDefault("pipeline.tolerance", 0.01)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.impervious_codes", DefaultImperviousCodes)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.xlsx", false)
	v.SetDefault("output.area_decimals", 2)
	v.SetDefault("output.ratio_decimals", 4)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.srid", 5179)
	v.SetDefault("store.retry_attempts", 3)
	v.SetDefault("store.retry_backoff", "500ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by the given command are present.
// Mode is one of "clip", "summarize", "run".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Pipeline.StartYear > c.Pipeline.EndYear {
		errs = append(errs, "pipeline.start_year must not be after pipeline.end_year")
	}
	if c.Pipeline.Tolerance < 0 {
		errs = append(errs, "pipeline.tolerance must not be negative")
	}
	if c.Input.DistrictField == "" {
		errs = append(errs, "input.district_field is required")
	}

	switch mode {
	case "clip", "run":
		if c.Input.BoundaryPath == "" {
			errs = append(errs, "input.boundary_path is required")
		}
		if c.Input.LayerDir == "" {
			errs = append(errs, "input.layer_dir is required")
		}
	case "summarize":
		if c.Input.SummaryDir == "" {
			errs = append(errs, "input.summary_dir is required")
		}
	}

	switch c.Store.Driver {
	case "", "none":
	case "sqlite", "postgres":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, "store.driver must be one of none, sqlite, postgres")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

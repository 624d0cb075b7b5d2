// Package config loads the pipeline configuration: defaults, then an
// optional YAML file, then TIP_-prefixed environment variables, in
// increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete pipeline configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" envconfig:"DATA"`
	Fetch   FetchConfig   `yaml:"fetch" envconfig:"FETCH"`
	Panel   PanelConfig   `yaml:"panel" envconfig:"PANEL"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// DataConfig locates the input and output trees.
type DataConfig struct {
	Dir    string `yaml:"dir" envconfig:"DIR" validate:"required"`
	OutDir string `yaml:"out_dir" envconfig:"OUT_DIR" validate:"required"`
}

// FetchConfig names the remote sources.
type FetchConfig struct {
	TreatyURL string  `yaml:"treaty_url" envconfig:"TREATY_URL" validate:"required,url"`
	AidURL    string  `yaml:"aid_url" envconfig:"AID_URL" validate:"required,url"`
	WBBaseURL string  `yaml:"wb_base_url" envconfig:"WB_BASE_URL" validate:"required,url"`
	WBPerSec  float64 `yaml:"wb_per_sec" envconfig:"WB_PER_SEC" validate:"gt=0"`
	Skip      bool    `yaml:"skip" envconfig:"SKIP"`
}

// PanelConfig fixes the study years. YearMax doubles as the currency
// rebasing target base year.
type PanelConfig struct {
	YearMin int `yaml:"year_min" envconfig:"YEAR_MIN" validate:"min=1900,max=2100"`
	YearMax int `yaml:"year_max" envconfig:"YEAR_MAX" validate:"min=1900,max=2100,gtefield=YearMin"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Dir:    "data",
			OutDir: "out",
		},
		Fetch: FetchConfig{
			TreatyURL: "https://treaties.un.org/Pages/ViewDetails.aspx?src=TREATY&mtdsg_no=XVIII-12-a&chapter=18",
			AidURL:    "https://stats.oecd.org/FileView2.aspx?IDFile=crs-tip-commitments",
			WBBaseURL: "https://api.worldbank.org/v2",
			WBPerSec:  4,
		},
		Panel: PanelConfig{
			YearMin: 2000,
			YearMax: 2015,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, overlaid with the YAML file at
// path when given, overlaid with TIP_-prefixed environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process("TIP", cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// RawDir is where source files live and fetched copies cache.
func (c *Config) RawDir() string {
	return filepath.Join(c.Data.Dir, "raw")
}

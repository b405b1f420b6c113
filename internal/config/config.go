package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Grid settings
	Grid GridConfig `yaml:"grid"`

	// Pipeline settings
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Cache settings
	Cache CacheConfig `yaml:"cache"`

	// Output settings
	Output OutputConfig `yaml:"output"`
}

type GridConfig struct {
	Rows           int    `yaml:"rows" env:"FRAMESHEET_ROWS"`
	Cols           int    `yaml:"cols" env:"FRAMESHEET_COLS"`
	TargetWidth    int    `yaml:"target_width" env:"FRAMESHEET_TARGET_WIDTH"`
	AspectMode     string `yaml:"aspect_mode" env:"FRAMESHEET_ASPECT_MODE"`
	Theme          string `yaml:"theme" env:"FRAMESHEET_THEME"`
	ShowTimestamps bool   `yaml:"show_timestamps" env:"FRAMESHEET_SHOW_TIMESTAMPS"`
}

type PipelineConfig struct {
	MaxConcurrent    int     `yaml:"max_concurrent" env:"FRAMESHEET_MAX_CONCURRENT"`
	OversampleFactor float64 `yaml:"oversample_factor" env:"FRAMESHEET_OVERSAMPLE"`
	MaxDecodeSize    int     `yaml:"max_decode_size" env:"FRAMESHEET_MAX_DECODE_SIZE"`
}

type CacheConfig struct {
	Dir     string `yaml:"dir" env:"FRAMESHEET_CACHE_DIR"`
	Enabled bool   `yaml:"enabled" env:"FRAMESHEET_CACHE_ENABLED"`
}

type OutputConfig struct {
	Dir         string `yaml:"dir" env:"FRAMESHEET_OUTPUT_DIR"`
	JPEGQuality int    `yaml:"jpeg_quality" env:"FRAMESHEET_JPEG_QUALITY"`
}

// Load reads configuration from file, applies env overrides, or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks configuration bounds
func (c *Config) Validate() error {
	if c.Grid.Rows < 1 || c.Grid.Rows > 12 {
		return fmt.Errorf("rows must be between 1 and 12, got %d", c.Grid.Rows)
	}
	if c.Grid.Cols < 1 || c.Grid.Cols > 12 {
		return fmt.Errorf("cols must be between 1 and 12, got %d", c.Grid.Cols)
	}
	if c.Grid.TargetWidth < 640 || c.Grid.TargetWidth > 7680 {
		return fmt.Errorf("target width must be between 640 and 7680, got %d", c.Grid.TargetWidth)
	}
	switch c.Grid.AspectMode {
	case "fill", "fit", "source":
	default:
		return fmt.Errorf("aspect mode must be fill, fit or source, got %q", c.Grid.AspectMode)
	}
	switch c.Grid.Theme {
	case "black", "white":
	default:
		return fmt.Errorf("theme must be black or white, got %q", c.Grid.Theme)
	}
	if c.Pipeline.MaxConcurrent < 1 || c.Pipeline.MaxConcurrent > 10 {
		return fmt.Errorf("max concurrent must be between 1 and 10, got %d", c.Pipeline.MaxConcurrent)
	}
	if c.Pipeline.OversampleFactor < 1.0 {
		return fmt.Errorf("oversample factor must be >= 1.0, got %g", c.Pipeline.OversampleFactor)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be between 1 and 100, got %d", c.Output.JPEGQuality)
	}
	return nil
}

func defaultConfig() *Config {
	cacheDir := ""
	if base, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(base, "framesheet")
	}

	return &Config{
		Grid: GridConfig{
			Rows:           4,
			Cols:           4,
			TargetWidth:    1920,
			AspectMode:     "fill",
			Theme:          "black",
			ShowTimestamps: true,
		},
		Pipeline: PipelineConfig{
			MaxConcurrent:    2,
			OversampleFactor: 1.5,
			MaxDecodeSize:    480,
		},
		Cache: CacheConfig{
			Dir:     cacheDir,
			Enabled: true,
		},
		Output: OutputConfig{
			Dir:         "",
			JPEGQuality: 90,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./framesheet.yaml",
		"./framesheet.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "framesheet", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}

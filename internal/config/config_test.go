package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Grid.Rows)
	assert.Equal(t, 4, cfg.Grid.Cols)
	assert.Equal(t, 1920, cfg.Grid.TargetWidth)
	assert.Equal(t, 2, cfg.Pipeline.MaxConcurrent)
	assert.InDelta(t, 1.5, cfg.Pipeline.OversampleFactor, 1e-9)
	assert.True(t, cfg.Cache.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framesheet.yaml")
	data := []byte("grid:\n  rows: 3\n  cols: 5\n  theme: white\npipeline:\n  max_concurrent: 4\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Grid.Rows)
	assert.Equal(t, 5, cfg.Grid.Cols)
	assert.Equal(t, "white", cfg.Grid.Theme)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrent)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1920, cfg.Grid.TargetWidth)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("FRAMESHEET_ROWS", "6")
	t.Setenv("FRAMESHEET_THEME", "white")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Grid.Rows)
	assert.Equal(t, "white", cfg.Grid.Theme)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rows", func(c *Config) { c.Grid.Rows = 0 }},
		{"too many cols", func(c *Config) { c.Grid.Cols = 13 }},
		{"narrow width", func(c *Config) { c.Grid.TargetWidth = 320 }},
		{"bad aspect", func(c *Config) { c.Grid.AspectMode = "stretch" }},
		{"bad theme", func(c *Config) { c.Grid.Theme = "sepia" }},
		{"excess concurrency", func(c *Config) { c.Pipeline.MaxConcurrent = 11 }},
		{"undersample", func(c *Config) { c.Pipeline.OversampleFactor = 0.5 }},
		{"bad quality", func(c *Config) { c.Output.JPEGQuality = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrips(t *testing.T) {
	cfg := defaultConfig()
	cfg.Grid.Rows = 5
	cfg.Grid.Theme = "white"
	cfg.Pipeline.MaxConcurrent = 3

	path := filepath.Join(t.TempDir(), "framesheet.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Grid.Rows)
	assert.Equal(t, "white", loaded.Grid.Theme)
	assert.Equal(t, 3, loaded.Pipeline.MaxConcurrent)
	assert.NoError(t, loaded.Validate())
}

func TestConfigContextRoundTrip(t *testing.T) {
	cfg := defaultConfig()
	cfg.Grid.Rows = 7

	ctx := WithConfig(context.Background(), cfg)
	assert.Equal(t, 7, FromContext(ctx).Grid.Rows)

	// Absent config falls back to defaults.
	assert.Equal(t, 4, FromContext(context.Background()).Grid.Rows)
}

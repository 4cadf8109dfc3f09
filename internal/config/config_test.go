package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-trading-bot-go/internal/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validGrid() models.GridConfig {
	return models.GridConfig{
		Symbol:           "BTCUSDT",
		GridSize:         10,
		LowerPrice:       30000,
		UpperPrice:       40000,
		QuantityPerOrder: 0.001,
		CheckIntervalSec: 5,
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"grid": {
			"symbol": "BTCUSDT",
			"grid_size": 10,
			"lower_price": 30000,
			"upper_price": 40000,
			"quantity_per_order": 0.001
		}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, "data/gridbot", cfg.DBPath)
	assert.Equal(t, 30, cfg.RateLimitCapacity)
	assert.Equal(t, 1.0, cfg.RateLimitWindowSec)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 500, cfg.RetryInitialDelayMs)
	assert.Equal(t, 5, cfg.Grid.CheckIntervalSec)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadConfigMalformedJSON(t *testing.T) {
	path := writeConfigFile(t, `{"grid": `)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.Config)
	}{
		{"empty symbol", func(c *models.Config) { c.Grid.Symbol = "" }},
		{"grid size below two", func(c *models.Config) { c.Grid.GridSize = 1 }},
		{"zero lower price", func(c *models.Config) { c.Grid.LowerPrice = 0 }},
		{"upper not above lower", func(c *models.Config) { c.Grid.UpperPrice = c.Grid.LowerPrice }},
		{"inverted range", func(c *models.Config) { c.Grid.UpperPrice = c.Grid.LowerPrice - 1 }},
		{"zero quantity", func(c *models.Config) { c.Grid.QuantityPerOrder = 0 }},
		{"negative quantity", func(c *models.Config) { c.Grid.QuantityPerOrder = -1 }},
		{"zero check interval", func(c *models.Config) { c.Grid.CheckIntervalSec = 0 }},
		{"zero rate limit capacity", func(c *models.Config) { c.RateLimitCapacity = 0 }},
		{"negative rate limit window", func(c *models.Config) { c.RateLimitWindowSec = -1 }},
		{"unknown mode", func(c *models.Config) { c.Mode = "backtest" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &models.Config{
				Mode:                "paper",
				DBPath:              "data/test",
				Grid:                validGrid(),
				RateLimitCapacity:   30,
				RateLimitWindowSec:  1,
				RetryAttempts:       3,
				RetryInitialDelayMs: 500,
			}
			require.NoError(t, Validate(cfg), "base config must be valid")
			tc.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestGridStepIsUniform(t *testing.T) {
	g := models.GridConfig{GridSize: 5, LowerPrice: 100, UpperPrice: 200}
	assert.Equal(t, 25.0, g.Step())
}

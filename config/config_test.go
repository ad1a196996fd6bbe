package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"EURUSD"}, cfg.Symbols)
	assert.Equal(t, "5m", string(cfg.Strategy.BaseTimeframe))
	assert.Equal(t, 14, cfg.Strategy.ATRPeriod)
	assert.Equal(t, 0.35, cfg.Risk.RiskPercent)
	assert.Equal(t, 2, cfg.Risk.MaxDailyTrades)
	assert.Equal(t, "00:00", cfg.Session.AccumulationClock.Start)
	assert.Equal(t, "07:00", cfg.Session.RaidClock.Start)
	assert.True(t, cfg.Live.DryRun)
	assert.False(t, cfg.Live.TradingEnabled)

	require.NoError(t, Validate(cfg))
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"symbols": ["GBPUSD"],
		"pip_sizes": {"GBPUSD": 0.0001},
		"risk": {"risk_percent": 0.5},
		"strategy": {"atr_period": 20}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "redis:6400")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"GBPUSD"}, cfg.Symbols)
	assert.Equal(t, 0.5, cfg.Risk.RiskPercent)
	assert.Equal(t, 20, cfg.Strategy.ATRPeriod)

	// Env wins over file and defaults.
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "redis:6400", cfg.Redis.Addr)

	// File values layer on top of defaults without clearing them.
	assert.Equal(t, 2.0, cfg.Risk.TargetRMultiple)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"risk": {"risk_percent": -1}}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownTimeframe(t *testing.T) {
	// "3m" parses as a string but has no bar duration; it must fail validation
	// instead of silently producing zero-length bars.
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"strategy": {"base_timeframe": "3m"}}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestPipSizeFallback(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.PipSizes = map[string]float64{"USDJPY": 0.01}

	assert.Equal(t, 0.01, cfg.PipSize("USDJPY"))
	assert.Equal(t, 0.0001, cfg.PipSize("EURUSD"))
}

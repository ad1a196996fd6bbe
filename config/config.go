// Package config loads the flat strategy/runtime configuration: struct-tag
// defaults, an optional JSON config file, environment overrides, then
// validation. Profile files are layered on top via the typed merge in
// merge.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"sweep-trading-bot/internal/detect"
	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/session"
)

// Config is the root configuration object. It is constructed once per run or
// cycle and threaded explicitly through every call; nothing reads it from
// process-wide state.
type Config struct {
	Symbols  []string           `json:"symbols"`
	PipSizes map[string]float64 `json:"pip_sizes"`

	Session  session.Config `json:"session"`
	Strategy StrategyConfig `json:"strategy"`
	Risk     RiskConfig     `json:"risk"`
	Live     LiveConfig     `json:"live"`
	Broker   BrokerConfig   `json:"broker"`
	Redis    RedisConfig    `json:"redis"`
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Replay   ReplayConfig   `json:"replay"`
}

// StrategyConfig groups the detector knobs.
type StrategyConfig struct {
	BaseTimeframe    market.Timeframe `json:"base_timeframe" default:"5m" validate:"oneof=1m 5m 15m 30m 1h"`
	ConfirmTimeframe market.Timeframe `json:"confirm_timeframe" default:"5m" validate:"oneof=1m 5m 15m 30m 1h"`
	ATRPeriod        int              `json:"atr_period" default:"14" validate:"gt=0"`
	MinRangeCandles  int              `json:"min_range_candles" default:"12" validate:"gt=0"`

	Sweep   detect.SweepConfig   `json:"sweep"`
	Confirm detect.ConfirmConfig `json:"confirm"`
	Zone    detect.ZoneConfig    `json:"zone"`
}

// RiskConfig groups sizing and trade-management knobs.
type RiskConfig struct {
	RiskPercent          float64 `json:"risk_percent" default:"0.35" validate:"gt=0"` // % of equity risked per trade
	ReferenceEquity      float64 `json:"reference_equity" default:"10000" validate:"gt=0"`
	TargetRMultiple      float64 `json:"target_r_multiple" default:"2.0" validate:"gt=0"`
	StopBufferPips       float64 `json:"stop_buffer_pips" default:"1.0"`
	StopBufferSpreadMult float64 `json:"stop_buffer_spread_mult" default:"1.0"`
	MinStopPips          float64 `json:"min_stop_pips" default:"2.0"`
	MinNotional          float64 `json:"min_notional" default:"100"`
	MaxNotional          float64 `json:"max_notional" default:"2000"`
	Leverage             float64 `json:"leverage" default:"30"`
	OrderType            string  `json:"order_type" default:"market" validate:"oneof=market limit"`
	CooldownMinutes      int     `json:"cooldown_minutes" default:"30"`
	MaxDailyTrades       int     `json:"max_daily_trades" default:"2"`
}

// LiveConfig controls the live execution coordinator.
type LiveConfig struct {
	TradingEnabled   bool `json:"trading_enabled"`
	DryRun           bool `json:"dry_run" default:"true"`
	ReconcileEnabled bool `json:"reconcile_enabled" default:"true"`
	LockTTLSeconds   int  `json:"lock_ttl_seconds" default:"55" validate:"gt=0"`
	StateTTLHours    int  `json:"state_ttl_hours" default:"48" validate:"gt=0"`
	CycleSeconds     int  `json:"cycle_seconds" default:"60"` // 0 disables the internal scheduler
	CandleLimit      int  `json:"candle_limit" default:"500"`
}

// BrokerConfig holds broker gateway connection settings.
type BrokerConfig struct {
	BaseURL        string `json:"base_url"`
	StreamURL      string `json:"stream_url"`
	APIKey         string `json:"api_key"`
	AccountID      string `json:"account_id"`
	TimeoutSeconds int    `json:"timeout_seconds" default:"10"`
}

// RedisConfig holds the session store connection settings.
type RedisConfig struct {
	Addr     string `json:"addr" default:"localhost:6379"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// DatabaseConfig holds the optional postgres mirror settings.
type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Port           int    `json:"port" default:"8080"`
	Host           string `json:"host" default:"0.0.0.0"`
	AllowedOrigins string `json:"allowed_origins" default:"*"`
	AuthEnabled    bool   `json:"auth_enabled"`
	JWTSecret      string `json:"jwt_secret"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `json:"level" default:"info"`
	JSON  bool   `json:"json"`
}

// ReplayConfig controls the replay harness fill/exit model.
type ReplayConfig struct {
	TickMinutes           int     `json:"tick_minutes" default:"1" validate:"gt=0"`
	SlippagePips          float64 `json:"slippage_pips" default:"0.2"`
	PreferStopWhenBothHit bool    `json:"prefer_stop_when_both_hit" default:"true"`
	ForceCloseAtEnd       bool    `json:"force_close_at_end" default:"true"`
}

// Default returns a Config populated from struct-tag defaults only.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"EURUSD"}
	}
	if cfg.PipSizes == nil {
		cfg.PipSizes = map[string]float64{"EURUSD": 0.0001}
	}
	if cfg.Session.AccumulationClock == (session.ClockWindow{}) {
		cfg.Session.AccumulationClock = session.ClockWindow{Start: "00:00", End: "06:00"}
	}
	if cfg.Session.RaidClock == (session.ClockWindow{}) {
		cfg.Session.RaidClock = session.ClockWindow{Start: "07:00", End: "11:00"}
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then the JSON file at
// path (skipped when empty), then environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs struct validation over the whole tree.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// PipSize returns the configured pip size for a symbol, defaulting to 0.0001.
func (c *Config) PipSize(symbol string) float64 {
	if v, ok := c.PipSizes[symbol]; ok && v > 0 {
		return v
	}
	return 0.0001
}

func applyEnvOverrides(cfg *Config) {
	cfg.Broker.BaseURL = getEnvOrDefault("BROKER_BASE_URL", cfg.Broker.BaseURL)
	cfg.Broker.StreamURL = getEnvOrDefault("BROKER_STREAM_URL", cfg.Broker.StreamURL)
	cfg.Broker.APIKey = getEnvOrDefault("BROKER_API_KEY", cfg.Broker.APIKey)
	cfg.Broker.AccountID = getEnvOrDefault("BROKER_ACCOUNT_ID", cfg.Broker.AccountID)
	cfg.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Database.URL = getEnvOrDefault("DATABASE_URL", cfg.Database.URL)
	if os.Getenv("DATABASE_URL") != "" {
		cfg.Database.Enabled = true
	}
	cfg.Server.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.Server.JWTSecret)
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", cfg.Server.Port)
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	if v := os.Getenv("LIVE_TRADING_ENABLED"); v != "" {
		cfg.Live.TradingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.Live.DryRun = v == "true" || v == "1"
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

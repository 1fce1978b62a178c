// Package config loads the engine configuration from YAML, with .env
// and environment-variable overrides for credentials and logging.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration for both the scanner and the trader.
type Config struct {
	Scanner   ScannerConfig   `yaml:"scanner"`
	Trading   TradingConfig   `yaml:"trading"`
	Execution ExecutionConfig `yaml:"execution"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ScannerConfig controls the pair-discovery scan.
type ScannerConfig struct {
	Universe        []string `yaml:"universe"`          // symbols to combine pairwise
	LookbackCandles int      `yaml:"lookback_candles"`  // history depth per symbol
	CandleInterval  string   `yaml:"candle_interval"`   // e.g. "1h"
	ADFPValueMax    float64  `yaml:"adf_p_value_max"`   // stationarity threshold
	CointPValueMax  float64  `yaml:"coint_p_value_max"` // cointegration threshold
	MinCorrelation  float64  `yaml:"min_correlation"`   // cheap pre-filter
	MaxHalfLifeHrs  float64  `yaml:"max_half_life_hours"`
	TopN            int      `yaml:"top_n"`
	AnalysisWorkers int      `yaml:"analysis_workers"` // 0 = NumCPU
	PairsFile       string   `yaml:"pairs_file"`       // scan output / trade input
}

// TradingConfig holds the per-pair signal thresholds applied to every
// traded pair.
type TradingConfig struct {
	EntryZ           float64 `yaml:"entry_z"`
	ExitZ            float64 `yaml:"exit_z"`
	StopZ            float64 `yaml:"stop_z"`
	WindowSize       int     `yaml:"window_size"`
	MinSamples       int     `yaml:"min_samples"`
	AdaptiveHedge    bool    `yaml:"adaptive_hedge"`
	DuplicateWindowS int     `yaml:"duplicate_window_seconds"`
	RiskMultiplier   float64 `yaml:"risk_multiplier"`
}

// DuplicateWindow returns the suppression window as a duration.
func (c TradingConfig) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowS) * time.Second
}

// ExecutionConfig holds the execution engine's risk and safety limits.
type ExecutionConfig struct {
	RiskPerTrade        float64 `yaml:"risk_per_trade"`
	MaxPositionFraction float64 `yaml:"max_position_fraction"`
	FullFillRatio       float64 `yaml:"full_fill_ratio"`
	AbortFillRatio      float64 `yaml:"abort_fill_ratio"`
	UnwindRetries       int     `yaml:"unwind_retries"`
	RetryBackoffMs      int     `yaml:"retry_backoff_ms"`
	FeeRate             float64 `yaml:"fee_rate"`
}

// RetryBackoff returns the base unwind backoff as a duration.
func (c ExecutionConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// APIConfig holds venue endpoints and credentials. Keys come only from
// the environment, never from the YAML file.
type APIConfig struct {
	RESTBase  string `yaml:"rest_base"`
	WSBase    string `yaml:"ws_base"`
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// StorageConfig controls where data is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and applies .env plus environment overrides.
func Load(path string) (*Config, error) {
	// Load .env if present (missing file is fine).
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides pulls credentials and log settings from the
// environment when present.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.API.APISecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills in sensible values for anything the file left out.
func setDefaults(cfg *Config) {
	if cfg.Scanner.LookbackCandles <= 0 {
		cfg.Scanner.LookbackCandles = 1440
	}
	if cfg.Scanner.CandleInterval == "" {
		cfg.Scanner.CandleInterval = "1h"
	}
	if cfg.Scanner.ADFPValueMax <= 0 {
		cfg.Scanner.ADFPValueMax = 0.05
	}
	if cfg.Scanner.CointPValueMax <= 0 {
		cfg.Scanner.CointPValueMax = 0.05
	}
	if cfg.Scanner.MinCorrelation <= 0 {
		cfg.Scanner.MinCorrelation = 0.5
	}
	if cfg.Scanner.MaxHalfLifeHrs <= 0 {
		cfg.Scanner.MaxHalfLifeHrs = 24
	}
	if cfg.Scanner.TopN <= 0 {
		cfg.Scanner.TopN = 10
	}
	if cfg.Scanner.PairsFile == "" {
		cfg.Scanner.PairsFile = "pairs.yaml"
	}

	if cfg.Trading.EntryZ <= 0 {
		cfg.Trading.EntryZ = 2.0
	}
	if cfg.Trading.ExitZ <= 0 {
		cfg.Trading.ExitZ = 0.5
	}
	if cfg.Trading.StopZ <= 0 {
		cfg.Trading.StopZ = 4.0
	}
	if cfg.Trading.WindowSize <= 0 {
		cfg.Trading.WindowSize = 150
	}
	if cfg.Trading.MinSamples <= 0 {
		cfg.Trading.MinSamples = 20
	}
	if cfg.Trading.DuplicateWindowS <= 0 {
		cfg.Trading.DuplicateWindowS = 30
	}
	if cfg.Trading.RiskMultiplier <= 0 {
		cfg.Trading.RiskMultiplier = 1.0
	}

	if cfg.Execution.RiskPerTrade <= 0 {
		cfg.Execution.RiskPerTrade = 0.02
	}
	if cfg.Execution.MaxPositionFraction <= 0 {
		cfg.Execution.MaxPositionFraction = 0.10
	}
	if cfg.Execution.FullFillRatio <= 0 {
		cfg.Execution.FullFillRatio = 0.95
	}
	if cfg.Execution.AbortFillRatio <= 0 {
		cfg.Execution.AbortFillRatio = 0.50
	}
	if cfg.Execution.UnwindRetries <= 0 {
		cfg.Execution.UnwindRetries = 3
	}
	if cfg.Execution.RetryBackoffMs <= 0 {
		cfg.Execution.RetryBackoffMs = 500
	}
	if cfg.Execution.FeeRate <= 0 {
		cfg.Execution.FeeRate = 0.0004
	}

	if cfg.API.RESTBase == "" {
		cfg.API.RESTBase = "https://api.binance.com"
	}
	if cfg.API.WSBase == "" {
		cfg.API.WSBase = "wss://stream.binance.com:9443"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "statarb.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "scanner:\n  universe: [BTCUSDT, ETHUSDT]\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1440, cfg.Scanner.LookbackCandles)
	assert.Equal(t, "1h", cfg.Scanner.CandleInterval)
	assert.InDelta(t, 0.05, cfg.Scanner.ADFPValueMax, 1e-9)
	assert.Equal(t, 2.0, cfg.Trading.EntryZ)
	assert.Equal(t, 0.5, cfg.Trading.ExitZ)
	assert.Equal(t, 4.0, cfg.Trading.StopZ)
	assert.Equal(t, 30*time.Second, cfg.Trading.DuplicateWindow())
	assert.InDelta(t, 0.02, cfg.Execution.RiskPerTrade, 1e-9)
	assert.InDelta(t, 0.95, cfg.Execution.FullFillRatio, 1e-9)
	assert.InDelta(t, 0.50, cfg.Execution.AbortFillRatio, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.Execution.RetryBackoff())
	assert.Equal(t, "statarb.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileValuesWin(t *testing.T) {
	path := writeConfig(t, `
scanner:
  lookback_candles: 720
  candle_interval: 15m
trading:
  entry_z: 2.5
  duplicate_window_seconds: 60
execution:
  unwind_retries: 5
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 720, cfg.Scanner.LookbackCandles)
	assert.Equal(t, "15m", cfg.Scanner.CandleInterval)
	assert.Equal(t, 2.5, cfg.Trading.EntryZ)
	assert.Equal(t, time.Minute, cfg.Trading.DuplicateWindow())
	assert.Equal(t, 5, cfg.Execution.UnwindRetries)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "key-from-env")
	t.Setenv("BINANCE_API_SECRET", "secret-from-env")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "key-from-env", cfg.API.APIKey)
	assert.Equal(t, "secret-from-env", cfg.API.APISecret)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPairsFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	in := []domain.PairCandidate{
		{
			PairID:        "AAAUSDT-BBBUSDT",
			LegA:          "AAAUSDT",
			LegB:          "BBBUSDT",
			HedgeRatio:    0.85,
			CointPValue:   0.004,
			HalfLifeHours: 7.2,
			ScannedAt:     time.Now().UTC().Truncate(time.Second),
		},
	}

	require.NoError(t, SavePairs(path, in))

	out, err := LoadPairs(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in[0].PairID, out[0].PairID)
	assert.InDelta(t, in[0].HedgeRatio, out[0].HedgeRatio, 1e-9)
	assert.InDelta(t, in[0].CointPValue, out[0].CointPValue, 1e-9)
}

func TestLoadPairs_EmptyFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pairs: []\n"), 0o644))

	_, err := LoadPairs(path)
	assert.Error(t, err)
}

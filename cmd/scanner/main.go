package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alejandrodnm/statarb/config"
	"github.com/alejandrodnm/statarb/internal/adapters/binance"
	"github.com/alejandrodnm/statarb/internal/adapters/notify"
	"github.com/alejandrodnm/statarb/internal/adapters/storage"
	"github.com/alejandrodnm/statarb/internal/application/scanner"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	universe := flag.String("universe", "", "comma-separated symbols (overrides config)")
	pairsOut := flag.String("out", "", "pairs file to write (overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	symbols := cfg.Scanner.Universe
	if *universe != "" {
		symbols = strings.Split(*universe, ",")
	}
	pairsFile := cfg.Scanner.PairsFile
	if *pairsOut != "" {
		pairsFile = *pairsOut
	}

	slog.Info("statarb scanner starting",
		"config", *configPath,
		"universe", len(symbols),
		"lookback", cfg.Scanner.LookbackCandles,
		"interval", cfg.Scanner.CandleInterval,
	)

	client := binance.NewClient(cfg.API.RESTBase, cfg.API.APIKey, cfg.API.APISecret)
	exchange := binance.NewExchange(client, cfg.Scanner.CandleInterval)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	scanCfg := scanner.Config{
		Lookback:        cfg.Scanner.LookbackCandles,
		CandleHours:     intervalHours(cfg.Scanner.CandleInterval),
		ADFPValueMax:    cfg.Scanner.ADFPValueMax,
		CointPValueMax:  cfg.Scanner.CointPValueMax,
		MinCorrelation:  cfg.Scanner.MinCorrelation,
		MaxHalfLifeHrs:  cfg.Scanner.MaxHalfLifeHrs,
		TopN:            cfg.Scanner.TopN,
		AnalysisWorkers: cfg.Scanner.AnalysisWorkers,
	}

	s := scanner.New(scanCfg, exchange, store, notify.NewConsole())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	candidates, err := s.Run(ctx, symbols)
	if err != nil {
		slog.Error("scan failed", "err", err)
		os.Exit(1)
	}
	if len(candidates) == 0 {
		slog.Warn("no cointegrated pairs found, pairs file not written")
		return
	}

	if err := config.SavePairs(pairsFile, candidates); err != nil {
		slog.Error("failed to write pairs file", "err", err)
		os.Exit(1)
	}
	slog.Info("pairs file written", "path", pairsFile, "pairs", len(candidates))
}

// intervalHours converts a candle interval like "1h", "15m" or "1d" into
// hours for half-life scaling.
func intervalHours(interval string) float64 {
	if len(interval) < 2 {
		return 1
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 1
	}
	switch interval[len(interval)-1] {
	case 'm':
		return float64(n) / 60
	case 'h':
		return float64(n)
	case 'd':
		return float64(n) * 24
	default:
		return 1
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

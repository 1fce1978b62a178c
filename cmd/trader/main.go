package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/statarb/config"
	"github.com/alejandrodnm/statarb/internal/adapters/binance"
	"github.com/alejandrodnm/statarb/internal/adapters/notify"
	"github.com/alejandrodnm/statarb/internal/adapters/storage"
	"github.com/alejandrodnm/statarb/internal/application/execution"
	"github.com/alejandrodnm/statarb/internal/application/trader"
	"github.com/alejandrodnm/statarb/internal/domain"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	pairsPath := flag.String("pairs", "", "pairs file from the scanner (overrides config)")
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

	if cfg.API.APIKey == "" || cfg.API.APISecret == "" {
		slog.Error("BINANCE_API_KEY and BINANCE_API_SECRET are required for trading")
		os.Exit(1)
	}

	pairsFile := cfg.Scanner.PairsFile
	if *pairsPath != "" {
		pairsFile = *pairsPath
	}
	pairs, err := config.LoadPairs(pairsFile)
	if err != nil {
		slog.Error("failed to load pairs file — run the scanner first", "err", err)
		os.Exit(1)
	}

	slog.Info("statarb trader starting",
		"config", *configPath,
		"pairs_file", pairsFile,
		"pairs", len(pairs),
		"entry_z", cfg.Trading.EntryZ,
		"exit_z", cfg.Trading.ExitZ,
		"stop_z", cfg.Trading.StopZ,
	)

	client := binance.NewClient(cfg.API.RESTBase, cfg.API.APIKey, cfg.API.APISecret)
	exchange := binance.NewExchange(client, cfg.Scanner.CandleInterval)
	feed := binance.NewFeed(cfg.API.WSBase)

	journal, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer journal.Close()

	console := notify.NewConsole()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Positions still open from a previous run block their pairs until
	// an operator resolves them; starting blind would risk doubling up.
	open, err := journal.OpenPositions(ctx)
	if err != nil {
		slog.Error("failed to read open positions", "err", err)
		os.Exit(1)
	}
	if len(open) > 0 {
		for _, p := range open {
			slog.Warn("unresolved position from previous session",
				"pair", p.PairID,
				"status", string(p.Status),
				"position", p.ID,
			)
		}
		slog.Error("resolve open positions before restarting the trader", "count", len(open))
		os.Exit(1)
	}

	executor := execution.New(exchange, journal, console, execution.Config{
		RiskPerTrade:        cfg.Execution.RiskPerTrade,
		MaxPositionFraction: cfg.Execution.MaxPositionFraction,
		FullFillRatio:       cfg.Execution.FullFillRatio,
		AbortFillRatio:      cfg.Execution.AbortFillRatio,
		UnwindRetries:       cfg.Execution.UnwindRetries,
		RetryBackoff:        cfg.Execution.RetryBackoff(),
		FeeRate:             cfg.Execution.FeeRate,
	})

	settings := domain.PairSettings{
		EntryZ:          cfg.Trading.EntryZ,
		ExitZ:           cfg.Trading.ExitZ,
		StopZ:           cfg.Trading.StopZ,
		WindowSize:      cfg.Trading.WindowSize,
		MinSamples:      cfg.Trading.MinSamples,
		AdaptiveHedge:   cfg.Trading.AdaptiveHedge,
		DuplicateWindow: cfg.Trading.DuplicateWindow(),
		RiskMultiplier:  cfg.Trading.RiskMultiplier,
	}

	t := trader.New(feed, executor, pairs, settings)
	if err := t.Run(ctx); err != nil {
		slog.Error("trader exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("statarb trader stopped cleanly")
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

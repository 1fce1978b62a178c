// Package scanner discovers cointegrated instrument pairs from
// historical price series. It is a finite offline batch job: fetch →
// evaluate (Engle-Granger pipeline per pair) → filter → rank → persist.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/alejandrodnm/statarb/internal/ports"
	"github.com/alejandrodnm/statarb/internal/stats"
)

const (
	defaultLookback    = 1440 // 60 days of hourly candles
	defaultADFMax      = 0.05
	defaultCointMax    = 0.05
	defaultMinCorr     = 0.5
	defaultMaxHalfLife = 24.0 // hours
	defaultTopN        = 10
)

// Config controls the scan.
type Config struct {
	Lookback        int     // samples per series
	CandleHours     float64 // period duration, converts half-life to hours
	ADFPValueMax    float64
	CointPValueMax  float64
	MinCorrelation  float64
	MaxHalfLifeHrs  float64
	TopN            int
	AnalysisWorkers int
}

// DefaultConfig returns sane production thresholds.
func DefaultConfig() Config {
	return Config{
		Lookback:       defaultLookback,
		CandleHours:    1,
		ADFPValueMax:   defaultADFMax,
		CointPValueMax: defaultCointMax,
		MinCorrelation: defaultMinCorr,
		MaxHalfLifeHrs: defaultMaxHalfLife,
		TopN:           defaultTopN,
	}
}

// Scanner orchestrates one scan over a universe of instruments.
type Scanner struct {
	cfg      Config
	history  ports.HistoryProvider
	store    ports.CandidateStore
	notifier ports.Notifier
}

// New creates a Scanner with all dependencies injected. store and
// notifier may be nil (dry runs).
func New(cfg Config, history ports.HistoryProvider, store ports.CandidateStore, notifier ports.Notifier) *Scanner {
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.CandleHours <= 0 {
		cfg.CandleHours = 1
	}
	if cfg.TopN <= 0 {
		cfg.TopN = defaultTopN
	}
	if cfg.ADFPValueMax <= 0 {
		cfg.ADFPValueMax = defaultADFMax
	}
	if cfg.CointPValueMax <= 0 {
		cfg.CointPValueMax = defaultCointMax
	}
	if cfg.MinCorrelation <= 0 {
		cfg.MinCorrelation = defaultMinCorr
	}
	if cfg.MaxHalfLifeHrs <= 0 {
		cfg.MaxHalfLifeHrs = defaultMaxHalfLife
	}
	return &Scanner{cfg: cfg, history: history, store: store, notifier: notifier}
}

// Run executes one full scan over the universe and returns the ranked,
// validated candidates.
func (s *Scanner) Run(ctx context.Context, universe []string) ([]domain.PairCandidate, error) {
	if len(universe) < 2 {
		return nil, fmt.Errorf("scanner.Run: universe needs at least 2 instruments, got %d", len(universe))
	}

	start := time.Now()
	nPairs := len(universe) * (len(universe) - 1) / 2
	slog.Info("scan: starting",
		"instruments", len(universe),
		"pairs", nPairs,
		"lookback", s.cfg.Lookback,
	)

	series, err := s.history.FetchSeries(ctx, universe, s.cfg.Lookback)
	if err != nil {
		return nil, fmt.Errorf("scanner.Run: fetch series: %w", err)
	}

	combos := makeCombos(universe)
	candidates := s.evaluateConcurrent(ctx, series, combos)

	rankCandidates(candidates)
	if len(candidates) > s.cfg.TopN {
		candidates = candidates[:s.cfg.TopN]
	}

	if s.store != nil {
		if err := s.store.SaveScanRun(ctx, start, len(universe), candidates); err != nil {
			slog.Warn("scan: storage error", "err", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyScan(ctx, candidates); err != nil {
			slog.Warn("scan: notifier error", "err", err)
		}
	}

	slog.Info("scan: complete",
		"candidates", len(candidates),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return candidates, nil
}

// evaluatePair runs the full validation pipeline on one combination.
// Every failure is non-fatal: log, drop the pair, continue the scan.
func (s *Scanner) evaluatePair(legA, legB string, seriesA, seriesB domain.PriceSeries) (domain.PairCandidate, bool) {
	pairID := legA + "-" + legB
	pricesA := seriesA.Prices()
	pricesB := seriesB.Prices()

	if len(pricesA) < s.cfg.Lookback || len(pricesB) < s.cfg.Lookback {
		slog.Debug("scan: insufficient history",
			"pair", pairID,
			"len_a", len(pricesA),
			"len_b", len(pricesB),
			"need", s.cfg.Lookback,
		)
		return domain.PairCandidate{}, false
	}
	pricesA = pricesA[len(pricesA)-s.cfg.Lookback:]
	pricesB = pricesB[len(pricesB)-s.cfg.Lookback:]

	// Cheap pre-filter before the regression pipeline: the universe is
	// quadratic in instruments, the correlation pass is what keeps the
	// scan tractable.
	corr := stats.Correlation(pricesA, pricesB)
	if corr < s.cfg.MinCorrelation {
		slog.Debug("scan: low correlation", "pair", pairID, "corr", fmt.Sprintf("%.3f", corr))
		return domain.PairCandidate{}, false
	}

	logA, err := stats.Log(pricesA)
	if err != nil {
		slog.Warn("scan: non-positive price, skipping pair", "pair", pairID, "leg", legA)
		return domain.PairCandidate{}, false
	}
	logB, err := stats.Log(pricesB)
	if err != nil {
		slog.Warn("scan: non-positive price, skipping pair", "pair", pairID, "leg", legB)
		return domain.PairCandidate{}, false
	}

	coint, err := stats.EngleGranger(logA, logB)
	if err != nil {
		slog.Warn("scan: cointegration test failed", "pair", pairID, "err", err)
		return domain.PairCandidate{}, false
	}
	if coint.PValue >= s.cfg.CointPValueMax {
		slog.Debug("scan: not cointegrated",
			"pair", pairID,
			"coint_p", fmt.Sprintf("%.4f", coint.PValue),
		)
		return domain.PairCandidate{}, false
	}

	// Stationarity of the tradable spread itself (no intercept term —
	// this is the series the live engine will actually trade).
	spread := stats.Spread(logA, logB, coint.HedgeRatio)
	adf, err := stats.ADF(spread, -1)
	if err != nil {
		slog.Warn("scan: ADF test failed", "pair", pairID, "err", err)
		return domain.PairCandidate{}, false
	}
	if adf.PValue >= s.cfg.ADFPValueMax {
		slog.Debug("scan: spread not stationary",
			"pair", pairID,
			"adf_p", fmt.Sprintf("%.4f", adf.PValue),
		)
		return domain.PairCandidate{}, false
	}

	hl, err := stats.HalfLife(spread)
	if err != nil {
		slog.Warn("scan: half-life estimation failed", "pair", pairID, "err", err)
		return domain.PairCandidate{}, false
	}
	hlHours := hl * s.cfg.CandleHours
	if hlHours > s.cfg.MaxHalfLifeHrs {
		slog.Debug("scan: half-life too long",
			"pair", pairID,
			"half_life_hours", fmt.Sprintf("%.1f", hlHours),
			"max", s.cfg.MaxHalfLifeHrs,
		)
		return domain.PairCandidate{}, false
	}

	cand := domain.PairCandidate{
		PairID:         pairID,
		LegA:           legA,
		LegB:           legB,
		HedgeRatio:     coint.HedgeRatio,
		Correlation:    corr,
		ADFStatistic:   adf.Statistic,
		ADFPValue:      adf.PValue,
		CointStatistic: coint.Statistic,
		CointPValue:    coint.PValue,
		HalfLifeHours:  hlHours,
		ScannedAt:      time.Now().UTC(),
	}

	slog.Info("scan: pair validated",
		"pair", cand.PairID,
		"beta", fmt.Sprintf("%.4f", cand.HedgeRatio),
		"adf_p", fmt.Sprintf("%.4f", cand.ADFPValue),
		"coint_p", fmt.Sprintf("%.4f", cand.CointPValue),
		"half_life_h", fmt.Sprintf("%.1f", cand.HalfLifeHours),
	)
	return cand, true
}

// combo is one unordered pair of the universe.
type combo struct {
	legA, legB string
}

func makeCombos(universe []string) []combo {
	out := make([]combo, 0, len(universe)*(len(universe)-1)/2)
	for i, a := range universe {
		for _, b := range universe[i+1:] {
			out = append(out, combo{legA: a, legB: b})
		}
	}
	return out
}

// rankCandidates sorts by ascending cointegration p-value, tie-broken by
// ascending half-life.
func rankCandidates(cands []domain.PairCandidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].CointPValue != cands[j].CointPValue {
			return cands[i].CointPValue < cands[j].CointPValue
		}
		return cands[i].HalfLifeHours < cands[j].HalfLifeHours
	})
}

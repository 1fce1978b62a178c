package scanner

// concurrent.go — worker pool for parallel pair evaluation.
//
// Pair evaluations are independent, so a 20-instrument universe (190
// combinations, each running three regressions over the full lookback)
// parallelizes cleanly across cores.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/statarb/internal/domain"
)

// evaluateConcurrent fans the pair combinations out over a worker pool
// and collects the surviving candidates. If cfg.AnalysisWorkers <= 0 it
// uses runtime.NumCPU().
func (s *Scanner) evaluateConcurrent(
	ctx context.Context,
	series map[string]domain.PriceSeries,
	combos []combo,
) []domain.PairCandidate {
	workers := s.cfg.AnalysisWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	workCh := make(chan combo, len(combos))
	resultCh := make(chan domain.PairCandidate, len(combos))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range workCh {
				if ctx.Err() != nil {
					continue // drain without evaluating once cancelled
				}
				seriesA, okA := series[c.legA]
				seriesB, okB := series[c.legB]
				if !okA || !okB {
					slog.Debug("scan: missing series", "pair", c.legA+"-"+c.legB)
					continue
				}
				if cand, ok := s.evaluatePair(c.legA, c.legB, seriesA, seriesB); ok {
					resultCh <- cand
				}
			}
		}()
	}

	for _, c := range combos {
		workCh <- c
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	candidates := make([]domain.PairCandidate, 0, len(combos))
	for cand := range resultCh {
		candidates = append(candidates, cand)
	}

	slog.Debug("scan: concurrent evaluation complete",
		"combos", len(combos),
		"candidates", len(candidates),
		"workers", workers,
	)
	return candidates
}

// Package trader wires the live trading loop together: one price feed
// subscription fanned out to one spread engine per validated pair, all
// funneling signals into the shared execution engine.
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/statarb/internal/application/execution"
	"github.com/alejandrodnm/statarb/internal/application/spread"
	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/alejandrodnm/statarb/internal/ports"
)

const tickBuffer = 256

// Trader runs the live session: it owns the per-pair goroutines and the
// shutdown sequence. Each pair gets its own tick channel and spread
// engine so a slow pair never stalls the others.
type Trader struct {
	feed     ports.PriceFeed
	executor *execution.Engine
	pairs    []domain.PairCandidate
	settings domain.PairSettings
}

// New assembles a trader for the given scanner-validated pairs. The
// settings apply to every pair's spread engine.
func New(feed ports.PriceFeed, executor *execution.Engine, pairs []domain.PairCandidate, settings domain.PairSettings) *Trader {
	return &Trader{
		feed:     feed,
		executor: executor,
		pairs:    pairs,
		settings: settings,
	}
}

// Run blocks until ctx is cancelled or the feed closes, then drains
// every in-flight execution before returning. Signals arriving after
// shutdown begins are still completed — a trade is never abandoned
// between legs.
func (t *Trader) Run(ctx context.Context) error {
	if len(t.pairs) == 0 {
		return fmt.Errorf("trader.Run: no pairs to trade")
	}

	symbols := collectSymbols(t.pairs)
	ticks, err := t.feed.Subscribe(ctx, symbols)
	if err != nil {
		return fmt.Errorf("trader.Run: subscribe: %w", err)
	}

	slog.Info("trader: session started",
		"pairs", len(t.pairs),
		"symbols", len(symbols),
	)

	// One goroutine + private channel per pair. The fan-out below routes
	// each tick to every pair that trades the symbol.
	var wg sync.WaitGroup
	routes := make(map[string][]chan domain.Tick, len(symbols))
	pairChans := make([]chan domain.Tick, 0, len(t.pairs))

	for _, pair := range t.pairs {
		ch := make(chan domain.Tick, tickBuffer)
		pairChans = append(pairChans, ch)
		routes[pair.LegA] = append(routes[pair.LegA], ch)
		routes[pair.LegB] = append(routes[pair.LegB], ch)

		engine := spread.NewEngine(pair, t.settings, t.executor)
		wg.Add(1)
		go func(pairID string, in <-chan domain.Tick) {
			defer wg.Done()
			for tick := range in {
				engine.OnTick(ctx, tick)
			}
			slog.Debug("trader: pair loop stopped", "pair", pairID)
		}(pair.PairID, ch)
	}

	t.fanOut(ctx, ticks, routes)

	for _, ch := range pairChans {
		close(ch)
	}
	wg.Wait()

	slog.Info("trader: draining in-flight executions")
	t.executor.Drain()

	summary := t.executor.Summary()
	slog.Info("trader: session finished",
		"trades", summary.TotalTrades,
		"open", summary.OpenPositions,
		"alerts", summary.Alerts,
		"pnl", fmt.Sprintf("%.4f", summary.RealizedPnL),
	)
	return nil
}

// fanOut routes feed ticks to pair channels until the feed closes or ctx
// is cancelled. A full pair channel drops the tick rather than blocking
// the whole feed; the next tick for that symbol supersedes it anyway.
func (t *Trader) fanOut(ctx context.Context, ticks <-chan domain.Tick, routes map[string][]chan domain.Tick) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("trader: shutdown requested")
			return
		case tick, open := <-ticks:
			if !open {
				slog.Warn("trader: price feed closed")
				return
			}
			for _, ch := range routes[tick.Symbol] {
				select {
				case ch <- tick:
				default:
					slog.Warn("trader: pair backlog full, tick dropped", "symbol", tick.Symbol)
				}
			}
		}
	}
}

// collectSymbols returns the deduplicated set of leg symbols across all
// pairs, in first-seen order.
func collectSymbols(pairs []domain.PairCandidate) []string {
	seen := make(map[string]struct{}, len(pairs)*2)
	out := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		for _, sym := range []string{p.LegA, p.LegB} {
			if _, dup := seen[sym]; dup {
				continue
			}
			seen[sym] = struct{}{}
			out = append(out, sym)
		}
	}
	return out
}

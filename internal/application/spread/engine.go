// Package spread turns a live two-leg price stream into discrete trading
// signals. One Engine instance is bound to one validated pair; instances
// share nothing, so any number of them can run on independent goroutines
// while cross-pair coordination stays inside the execution engine.
package spread

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/alejandrodnm/statarb/internal/ports"
	"github.com/alejandrodnm/statarb/internal/stats"
)

const (
	defaultEntryZ     = 2.0
	defaultExitZ      = 0.5
	defaultStopZ      = 4.0
	defaultWindowSize = 150
	defaultMinSamples = 20
	defaultDupWindow  = 30 * time.Second
	defaultRiskMult   = 1.0
)

// posState is the engine's private view of the pair's position.
type posState int

const (
	stateNeutral posState = iota
	stateLong
	stateShort
)

// Engine maintains the rolling spread distribution for one pair and
// emits entry/exit signals through the registered handler.
type Engine struct {
	pair     domain.PairCandidate
	settings domain.PairSettings
	handler  ports.SignalHandler

	window *stats.RollingWindow
	kalman *Kalman
	beta   float64

	priceA, priceB float64
	haveA, haveB   bool

	state    posState
	lastEmit map[domain.SignalDirection]time.Time
}

// NewEngine binds an engine to one scanner-validated pair. Zero-valued
// settings fields fall back to the package defaults.
func NewEngine(pair domain.PairCandidate, settings domain.PairSettings, handler ports.SignalHandler) *Engine {
	if settings.EntryZ <= 0 {
		settings.EntryZ = defaultEntryZ
	}
	if settings.ExitZ <= 0 {
		settings.ExitZ = defaultExitZ
	}
	if settings.StopZ <= 0 {
		settings.StopZ = defaultStopZ
	}
	if settings.WindowSize <= 0 {
		settings.WindowSize = defaultWindowSize
	}
	if settings.MinSamples <= 0 {
		settings.MinSamples = defaultMinSamples
	}
	if settings.DuplicateWindow <= 0 {
		settings.DuplicateWindow = defaultDupWindow
	}
	if settings.RiskMultiplier <= 0 {
		settings.RiskMultiplier = defaultRiskMult
	}

	e := &Engine{
		pair:     pair,
		settings: settings,
		handler:  handler,
		window:   stats.NewRollingWindow(settings.WindowSize),
		beta:     pair.HedgeRatio,
		lastEmit: make(map[domain.SignalDirection]time.Time),
	}
	if settings.AdaptiveHedge {
		e.kalman = NewKalman(pair.HedgeRatio)
	}
	return e
}

// Beta returns the current (possibly adapted) hedge ratio.
func (e *Engine) Beta() float64 { return e.beta }

// OnTick feeds one price sample into the engine. Ticks for symbols that
// are not a leg of this pair are ignored. The spread updates only once
// both legs have reported at least one price.
func (e *Engine) OnTick(ctx context.Context, tick domain.Tick) {
	switch tick.Symbol {
	case e.pair.LegA:
		e.priceA = tick.Price
		e.haveA = true
	case e.pair.LegB:
		e.priceB = tick.Price
		e.haveB = true
	default:
		return
	}
	if !e.haveA || !e.haveB {
		return
	}
	if e.priceA <= 0 || e.priceB <= 0 {
		slog.Warn("spread: non-positive price ignored",
			"pair", e.pair.PairID,
			"symbol", tick.Symbol,
			"price", tick.Price,
		)
		return
	}

	logA := math.Log(e.priceA)
	logB := math.Log(e.priceB)

	if e.kalman != nil {
		e.beta = e.kalman.Update(logA, logB)
	}

	spreadVal := logB - e.beta*logA
	e.window.Add(spreadVal)

	z, ok := e.window.ZScore(e.settings.MinSamples)
	if !ok {
		return // warming up, or flat spread
	}

	e.evaluate(ctx, z, tick.Timestamp)
}

// evaluate applies the state machine:
//
//	NEUTRAL → |z| ≥ entry → POSITIONED(direction)
//	POSITIONED → |z| ≤ exit → NEUTRAL via EXIT
//	POSITIONED → |z| ≥ stop → NEUTRAL via STOP
//
// STOP is distinct from EXIT: it signals probable breakdown of the
// statistical relationship, not a profitable reversion.
func (e *Engine) evaluate(ctx context.Context, z float64, at time.Time) {
	absZ := math.Abs(z)

	switch e.state {
	case stateNeutral:
		switch {
		case z <= -e.settings.EntryZ:
			e.emitEntry(ctx, domain.EnterLong, z, at)
		case z >= e.settings.EntryZ:
			e.emitEntry(ctx, domain.EnterShort, z, at)
		}

	case stateLong, stateShort:
		switch {
		case absZ >= e.settings.StopZ:
			e.emitUnwind(ctx, domain.Stop, z, at)
		case absZ <= e.settings.ExitZ:
			e.emitUnwind(ctx, domain.Exit, z, at)
		}
	}
}

// emitEntry dispatches an entry signal unless an identical one was
// emitted within the duplicate-suppression window. Tick-level noise
// around the threshold collapses to at most one emission per window, so
// the consumer never has to deduplicate.
func (e *Engine) emitEntry(ctx context.Context, dir domain.SignalDirection, z float64, at time.Time) {
	if last, ok := e.lastEmit[dir]; ok && at.Sub(last) < e.settings.DuplicateWindow {
		return
	}

	sig := e.buildSignal(dir, z, at)
	e.lastEmit[dir] = at

	if !e.handler.Execute(ctx, sig) {
		slog.Debug("spread: entry rejected by handler", "pair", e.pair.PairID, "signal", sig.String())
		return
	}

	if dir == domain.EnterLong {
		e.state = stateLong
	} else {
		e.state = stateShort
	}
	slog.Info("spread: position opened",
		"pair", e.pair.PairID,
		"direction", string(dir),
		"z", roundf(z),
	)
}

// emitUnwind dispatches EXIT or STOP for the open position. On a
// rejected unwind the state is kept so the next tick retries.
func (e *Engine) emitUnwind(ctx context.Context, dir domain.SignalDirection, z float64, at time.Time) {
	sig := e.buildSignal(dir, z, at)

	if !e.handler.Execute(ctx, sig) {
		slog.Warn("spread: unwind rejected by handler, will retry",
			"pair", e.pair.PairID,
			"direction", string(dir),
			"z", roundf(z),
		)
		return
	}

	e.state = stateNeutral
	slog.Info("spread: position closed",
		"pair", e.pair.PairID,
		"direction", string(dir),
		"z", roundf(z),
	)
}

// buildSignal assembles the signal value. Confidence is |z| relative to
// the entry threshold, bounded to 1; the size fraction scales it by the
// configured risk multiplier, capped at 1.
func (e *Engine) buildSignal(dir domain.SignalDirection, z float64, at time.Time) domain.TradingSignal {
	confidence := math.Min(math.Abs(z)/e.settings.EntryZ, 1.0)
	return domain.TradingSignal{
		PairID:       e.pair.PairID,
		LegA:         e.pair.LegA,
		LegB:         e.pair.LegB,
		Direction:    dir,
		ZScore:       z,
		Confidence:   confidence,
		SizeFraction: math.Min(confidence*e.settings.RiskMultiplier, 1.0),
		HedgeRatio:   e.beta,
		At:           at,
	}
}

func roundf(v float64) float64 {
	return math.Round(v*100) / 100
}

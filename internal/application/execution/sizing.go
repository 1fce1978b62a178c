package execution

// sizing.go — notional sizing and venue-precision rounding.
//
// The venue rejects imprecise quantities and orders below its minimum
// notional, so both are validated before anything is submitted.

import (
	"context"
	"fmt"
	"math"

	"github.com/alejandrodnm/statarb/internal/domain"
)

// legPlan is the pre-submission sizing for both legs of an entry.
type legPlan struct {
	qtyA, qtyB     float64
	priceA, priceB float64
	metaA, metaB   domain.InstrumentMeta
	sideA, sideB   domain.OrderSide
}

// planEntry derives both leg quantities for an entry signal: account
// equity × risk fraction × signal size fraction gives leg A's notional,
// the hedge ratio gives leg B's, and each quantity is rounded down to
// the instrument's tradable precision.
func (e *Engine) planEntry(ctx context.Context, sig domain.TradingSignal) (legPlan, error) {
	equity, err := e.exchange.AccountEquity(ctx)
	if err != nil {
		return legPlan{}, fmt.Errorf("execution.planEntry: account equity: %w", err)
	}
	if equity <= 0 {
		return legPlan{}, fmt.Errorf("execution.planEntry: account equity is zero")
	}

	notionalA := equity * e.cfg.RiskPerTrade * sig.SizeFraction
	maxNotional := equity * e.cfg.MaxPositionFraction
	if notionalA > maxNotional {
		notionalA = maxNotional
	}

	priceA, err := e.exchange.LastPrice(ctx, sig.LegA)
	if err != nil {
		return legPlan{}, fmt.Errorf("execution.planEntry: price %s: %w", sig.LegA, err)
	}
	priceB, err := e.exchange.LastPrice(ctx, sig.LegB)
	if err != nil {
		return legPlan{}, fmt.Errorf("execution.planEntry: price %s: %w", sig.LegB, err)
	}
	if priceA <= 0 || priceB <= 0 {
		return legPlan{}, fmt.Errorf("execution.planEntry: non-positive price (a=%.8f b=%.8f)", priceA, priceB)
	}

	metaA, err := e.exchange.InstrumentMeta(ctx, sig.LegA)
	if err != nil {
		return legPlan{}, fmt.Errorf("execution.planEntry: meta %s: %w", sig.LegA, err)
	}
	metaB, err := e.exchange.InstrumentMeta(ctx, sig.LegB)
	if err != nil {
		return legPlan{}, fmt.Errorf("execution.planEntry: meta %s: %w", sig.LegB, err)
	}

	qtyA := roundDown(notionalA/priceA, metaA.QtyPrecision)
	qtyB := roundDown(notionalA*sig.HedgeRatio/priceB, metaB.QtyPrecision)

	if err := checkNotional(qtyA, priceA, metaA); err != nil {
		return legPlan{}, err
	}
	if err := checkNotional(qtyB, priceB, metaB); err != nil {
		return legPlan{}, err
	}

	sideA, sideB := entrySides(sig.Direction)
	return legPlan{
		qtyA: qtyA, qtyB: qtyB,
		priceA: priceA, priceB: priceB,
		metaA: metaA, metaB: metaB,
		sideA: sideA, sideB: sideB,
	}, nil
}

// entrySides maps a signal direction to per-leg order sides. Long the
// spread means long leg B against short leg A; short is the mirror.
func entrySides(dir domain.SignalDirection) (sideA, sideB domain.OrderSide) {
	if dir == domain.EnterLong {
		return domain.SideSell, domain.SideBuy
	}
	return domain.SideBuy, domain.SideSell
}

// checkNotional rejects quantities below the venue's minimum order value.
func checkNotional(qty, price float64, meta domain.InstrumentMeta) error {
	notional := qty * price
	if notional < meta.MinNotional {
		return fmt.Errorf("execution: notional $%.2f below venue minimum $%.2f for %s",
			notional, meta.MinNotional, meta.Symbol)
	}
	return nil
}

// roundDown truncates qty to the given number of decimal places. Down,
// not nearest: rounding up could exceed the account balance or the
// leg-A fill being hedged.
func roundDown(qty float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	scale := math.Pow(10, float64(decimals))
	return math.Floor(qty*scale) / scale
}

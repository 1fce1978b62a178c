// Package execution turns trading signals into coordinated two-leg
// exchange orders. One shared Engine serves every pair; its safety
// contract is that no unhedged, duplicated, or lost position can persist
// undetected:
//
//  1. per-(pair, direction) serialization — duplicate in-flight signals
//     are rejected, never queued
//  2. partial-fill protection — leg B is sized from leg A's actual fill,
//     with an abort floor below which no hedge is attempted
//  3. ghost-order verification — a lost acknowledgment triggers exactly
//     one status query by client id, never a blind resubmit
//  4. precision and minimum-notional validation before any submission
//  5. atomic-intent rollback — a confirmed-missing leg B means leg A is
//     unwound with bounded retries, escalating to ALERT on exhaustion
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/alejandrodnm/statarb/internal/ports"
	"github.com/google/uuid"
)

const (
	defaultRiskPerTrade  = 0.02
	defaultMaxPosition   = 0.10
	defaultFullFillRatio = 0.95
	defaultAbortRatio    = 0.50
	defaultUnwindRetries = 3
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultFeeRate       = 0.0004 // taker fee fallback when the venue reports none
)

// Config holds the engine's risk and safety thresholds.
type Config struct {
	RiskPerTrade        float64 // fraction of equity risked per trade
	MaxPositionFraction float64 // hard cap on leg-A notional as equity fraction
	FullFillRatio       float64 // at or above: treat leg A as fully filled
	AbortFillRatio      float64 // below: abort the trade, no leg B
	UnwindRetries       int
	RetryBackoff        time.Duration
	FeeRate             float64
}

// DefaultConfig returns production thresholds.
func DefaultConfig() Config {
	return Config{
		RiskPerTrade:        defaultRiskPerTrade,
		MaxPositionFraction: defaultMaxPosition,
		FullFillRatio:       defaultFullFillRatio,
		AbortFillRatio:      defaultAbortRatio,
		UnwindRetries:       defaultUnwindRetries,
		RetryBackoff:        defaultRetryBackoff,
		FeeRate:             defaultFeeRate,
	}
}

// Summary is a monitoring snapshot of the engine's running totals.
type Summary struct {
	TotalTrades   int
	OpenPositions int
	Alerts        int
	RealizedPnL   float64
	FeesPaid      float64
}

// Engine is the shared execution engine. Implements ports.SignalHandler.
type Engine struct {
	exchange ports.Exchange
	journal  ports.TradeJournal
	alerter  ports.Alerter
	cfg      Config
	locks    *keyLocks

	mu        sync.Mutex
	positions map[string]*domain.Position // by pair id

	statsMu     sync.Mutex
	totalTrades int
	totalPnL    float64
	totalFees   float64
	alertCount  int

	inFlight sync.WaitGroup
}

// New creates the engine. journal and alerter may be nil in tests; the
// engine treats them as best-effort sinks.
func New(exchange ports.Exchange, journal ports.TradeJournal, alerter ports.Alerter, cfg Config) *Engine {
	if cfg.RiskPerTrade <= 0 {
		cfg.RiskPerTrade = defaultRiskPerTrade
	}
	if cfg.MaxPositionFraction <= 0 {
		cfg.MaxPositionFraction = defaultMaxPosition
	}
	if cfg.FullFillRatio <= 0 {
		cfg.FullFillRatio = defaultFullFillRatio
	}
	if cfg.AbortFillRatio <= 0 {
		cfg.AbortFillRatio = defaultAbortRatio
	}
	if cfg.UnwindRetries <= 0 {
		cfg.UnwindRetries = defaultUnwindRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.FeeRate <= 0 {
		cfg.FeeRate = defaultFeeRate
	}
	return &Engine{
		exchange:  exchange,
		journal:   journal,
		alerter:   alerter,
		cfg:       cfg,
		locks:     newKeyLocks(),
		positions: make(map[string]*domain.Position),
	}
}

// Execute runs the full pipeline for one signal. Returns true only when
// the signal produced a confirmed position transition; a false return
// guarantees either no observable state change or a position parked in
// ALERT awaiting the operator.
func (e *Engine) Execute(ctx context.Context, sig domain.TradingSignal) bool {
	key := sig.Key()
	if !e.locks.TryAcquire(key) {
		slog.Warn("exec: duplicate signal rejected", "key", key, "z", sig.ZScore)
		return false
	}
	defer e.locks.Release(key)

	e.inFlight.Add(1)
	defer e.inFlight.Done()

	if sig.Direction.IsEntry() {
		return e.executeEntry(ctx, sig)
	}
	return e.executeUnwind(ctx, sig)
}

// Drain blocks until every in-flight execution reaches a safe terminal
// state. Called on shutdown so no trade is abandoned mid-leg.
func (e *Engine) Drain() {
	e.inFlight.Wait()
}

// Positions returns a copy of the active position set.
func (e *Engine) Positions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// Summary returns the running totals for monitoring.
func (e *Engine) Summary() Summary {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.mu.Lock()
	open := len(e.positions)
	e.mu.Unlock()
	return Summary{
		TotalTrades:   e.totalTrades,
		OpenPositions: open,
		Alerts:        e.alertCount,
		RealizedPnL:   e.totalPnL,
		FeesPaid:      e.totalFees,
	}
}

// executeEntry opens a hedged position: size → leg A → classify fill →
// leg B → bookkeeping, with rollback when the hedge cannot be confirmed.
func (e *Engine) executeEntry(ctx context.Context, sig domain.TradingSignal) bool {
	// Reserve the pair before touching the venue so a concurrent entry
	// in the opposite direction cannot double-open it.
	e.mu.Lock()
	if _, exists := e.positions[sig.PairID]; exists {
		e.mu.Unlock()
		slog.Debug("exec: entry rejected, position already active", "pair", sig.PairID)
		return false
	}
	pos := &domain.Position{
		ID:          uuid.New().String(),
		PairID:      sig.PairID,
		Direction:   sig.Direction,
		Status:      domain.PositionOpening,
		EntryZScore: sig.ZScore,
	}
	e.positions[sig.PairID] = pos
	e.mu.Unlock()

	committed := false
	defer func() {
		if !committed {
			e.dropUnlessAlert(sig.PairID)
		}
	}()

	plan, err := e.planEntry(ctx, sig)
	if err != nil {
		slog.Warn("exec: entry sizing rejected", "pair", sig.PairID, "reason", err)
		return false
	}

	slog.Info("exec: entering pair trade",
		"pair", sig.PairID,
		"direction", string(sig.Direction),
		"z", sig.ZScore,
		"leg_a", fmt.Sprintf("%s %s %.6f", plan.sideA, sig.LegA, plan.qtyA),
		"leg_b", fmt.Sprintf("%s %s %.6f", plan.sideB, sig.LegB, plan.qtyB),
		"beta", sig.HedgeRatio,
	)

	// Leg A.
	orderA, ok := e.submitVerified(ctx, sig.PairID, domain.OrderRequest{
		ClientID: uuid.New().String(),
		Symbol:   sig.LegA,
		Side:     plan.sideA,
		Quantity: plan.qtyA,
	})
	if !ok {
		slog.Error("exec: leg A submission failed, no exposure taken", "pair", sig.PairID)
		return false
	}
	e.journalOrder(ctx, sig.PairID, orderA)

	ratio := orderA.FillRatio()
	slog.Info("exec: leg A filled",
		"pair", sig.PairID,
		"filled", orderA.FilledQty,
		"requested", orderA.Quantity,
		"fill_ratio", fmt.Sprintf("%.1f%%", ratio*100),
	)

	// Severe partial fill: abort before any hedge exists.
	if ratio < e.cfg.AbortFillRatio {
		slog.Error("exec: severe partial fill, aborting trade",
			"pair", sig.PairID,
			"fill_ratio", fmt.Sprintf("%.1f%%", ratio*100),
			"abort_below", fmt.Sprintf("%.0f%%", e.cfg.AbortFillRatio*100),
		)
		if orderA.FilledQty > 0 {
			e.rollbackLegA(ctx, pos, sig.LegA, plan.sideA, orderA.FilledQty, plan.metaA, "severe partial fill abort")
		}
		return false
	}

	// Hedge strictly from the actual leg-A fill, whatever the ratio.
	qtyB := roundDown(plan.qtyB*ratio, plan.metaB.QtyPrecision)
	if ratio < e.cfg.FullFillRatio {
		slog.Warn("exec: partial fill, hedge resized from actual leg A fill",
			"pair", sig.PairID,
			"nominal_b", plan.qtyB,
			"resized_b", qtyB,
		)
	}
	if err := checkNotional(qtyB, plan.priceB, plan.metaB); err != nil {
		slog.Error("exec: resized hedge below venue minimum, rolling back leg A",
			"pair", sig.PairID, "reason", err)
		e.rollbackLegA(ctx, pos, sig.LegA, plan.sideA, orderA.FilledQty, plan.metaA, "hedge below min notional")
		return false
	}

	e.journalPosition(ctx, e.mutate(pos, func(p *domain.Position) {
		p.OpenTime = time.Now().UTC()
	}))

	// Leg B, with ghost protection inside submitVerified.
	orderB, ok := e.submitVerified(ctx, sig.PairID, domain.OrderRequest{
		ClientID: uuid.New().String(),
		Symbol:   sig.LegB,
		Side:     plan.sideB,
		Quantity: qtyB,
	})
	if !ok {
		slog.Error("exec: leg B confirmed absent — leg A is naked, rolling back",
			"pair", sig.PairID,
			"naked_qty", orderA.FilledQty,
		)
		e.rollbackLegA(ctx, pos, sig.LegA, plan.sideA, orderA.FilledQty, plan.metaA, "leg B failure, atomic rollback")
		return false
	}
	e.journalOrder(ctx, sig.PairID, orderB)

	// Both legs confirmed: finalize.
	opened := e.mutate(pos, func(p *domain.Position) {
		p.LegA = domain.Leg{
			Symbol:     sig.LegA,
			Quantity:   signedQty(plan.sideA, orderA.FilledQty),
			EntryPrice: fillPrice(orderA, plan.priceA),
		}
		p.LegB = domain.Leg{
			Symbol:     sig.LegB,
			Quantity:   signedQty(plan.sideB, orderB.FilledQty),
			EntryPrice: fillPrice(orderB, plan.priceB),
		}
		p.FeesPaid = e.orderFee(orderA) + e.orderFee(orderB)
		p.Status = domain.PositionOpen
	})
	committed = true
	e.journalPosition(ctx, opened)

	e.statsMu.Lock()
	e.totalTrades++
	e.statsMu.Unlock()

	slog.Info("exec: pair trade executed",
		"pair", sig.PairID,
		"direction", string(sig.Direction),
		"qty_a", opened.LegA.Quantity,
		"qty_b", opened.LegB.Quantity,
		"entry_a", opened.LegA.EntryPrice,
		"entry_b", opened.LegB.EntryPrice,
	)
	return true
}

// executeUnwind closes an open position with symmetric opposite-side
// orders on both legs. The position leaves the active set only once both
// unwind legs are confirmed filled or ghost-verified.
func (e *Engine) executeUnwind(ctx context.Context, sig domain.TradingSignal) bool {
	// EXIT and STOP carry different execution keys, so the per-key lock
	// does not serialize them against each other. The OPEN→CLOSING
	// transition under e.mu is what does: a position already CLOSING is
	// being unwound by someone else and must be rejected here, or both
	// unwinds run and the position is flattened twice.
	e.mu.Lock()
	pos, exists := e.positions[sig.PairID]
	if !exists || pos.Status != domain.PositionOpen {
		e.mu.Unlock()
		slog.Debug("exec: unwind rejected, no unwindable position", "pair", sig.PairID)
		return false
	}
	pos.Status = domain.PositionClosing
	snap := *pos
	e.mu.Unlock()
	e.journalPosition(ctx, snap)

	slog.Info("exec: closing pair trade",
		"pair", sig.PairID,
		"reason", string(sig.Direction),
		"z", sig.ZScore,
	)

	metaA, errA := e.exchange.InstrumentMeta(ctx, pos.LegA.Symbol)
	metaB, errB := e.exchange.InstrumentMeta(ctx, pos.LegB.Symbol)
	if errA != nil || errB != nil {
		e.journalPosition(ctx, e.mutate(pos, func(p *domain.Position) {
			p.Status = domain.PositionOpen
		}))
		slog.Warn("exec: unwind aborted, instrument metadata unavailable", "pair", sig.PairID)
		return false
	}

	// Unwind leg A.
	qtyA := math.Abs(pos.LegA.Quantity)
	sideA := unwindSide(pos.LegA.Quantity)
	filledA, exitA, okA := e.unwindToCompletion(ctx, sig.PairID, pos.LegA.Symbol, sideA, qtyA, metaA)
	if !okA {
		if filledA <= 0 {
			// Nothing moved; the position is still intact. Keep it OPEN
			// and let the next exit signal retry.
			e.journalPosition(ctx, e.mutate(pos, func(p *domain.Position) {
				p.Status = domain.PositionOpen
			}))
			slog.Warn("exec: leg A unwind failed with no fills, will retry", "pair", sig.PairID)
			return false
		}
		e.escalate(ctx, pos, pos.LegA.Symbol, qtyA-filledA, "partial leg A unwind, retries exhausted")
		return false
	}

	// Unwind leg B. Leg A is flat now, so a failure here is naked
	// exposure on B: bounded retries, then escalation.
	qtyB := math.Abs(pos.LegB.Quantity)
	sideB := unwindSide(pos.LegB.Quantity)
	filledB, exitB, okB := e.unwindToCompletion(ctx, sig.PairID, pos.LegB.Symbol, sideB, qtyB, metaB)
	if !okB {
		e.escalate(ctx, pos, pos.LegB.Symbol, qtyB-filledB, "leg B unwind failed, retries exhausted")
		return false
	}

	var pnl float64
	closed := e.mutate(pos, func(p *domain.Position) {
		p.LegA.ExitPrice = exitA
		p.LegB.ExitPrice = exitB
		exitFees := exitA*filledA*e.cfg.FeeRate + exitB*filledB*e.cfg.FeeRate
		pnl = p.RealizePnL(p.FeesPaid + exitFees)
		p.Status = domain.PositionClosed
		p.CloseTime = time.Now().UTC()
	})
	e.journalPosition(ctx, closed)

	e.mu.Lock()
	delete(e.positions, sig.PairID)
	e.mu.Unlock()

	e.statsMu.Lock()
	e.totalTrades++
	e.totalPnL += pnl
	e.totalFees += closed.FeesPaid
	e.statsMu.Unlock()

	slog.Info("exec: position closed",
		"pair", sig.PairID,
		"reason", string(sig.Direction),
		"pnl", fmt.Sprintf("%.4f", pnl),
		"fees", fmt.Sprintf("%.4f", closed.FeesPaid),
	)
	return true
}

// submitVerified submits a market order and resolves its typed outcome.
// A transient failure (lost acknowledgment) triggers exactly one query
// by client id: found means the ghost is the real order, absent means it
// genuinely never executed. Never a blind resubmit. The uncertain order
// is journaled as TIMEOUT_UNKNOWN before the query and its resolution
// recorded after, so the audit trail shows the ambiguity window.
func (e *Engine) submitVerified(ctx context.Context, pairID string, req domain.OrderRequest) (domain.Order, bool) {
	res := e.exchange.SubmitMarketOrder(ctx, req)
	switch res.Outcome {
	case domain.SubmitFilled:
		return res.Order, true

	case domain.SubmitTransientFailure:
		slog.Warn("exec: submission ack lost, verifying ghost order",
			"symbol", req.Symbol,
			"client_id", req.ClientID,
			"err", res.Err,
		)
		e.journalOrder(ctx, pairID, domain.Order{
			ClientID:    req.ClientID,
			Symbol:      req.Symbol,
			Side:        req.Side,
			Quantity:    req.Quantity,
			Status:      domain.OrderTimeoutUnknown,
			SubmittedAt: time.Now().UTC(),
		})
		order, found, err := e.exchange.QueryOrder(ctx, req.Symbol, req.ClientID)
		if err != nil {
			slog.Error("exec: ghost verification failed", "client_id", req.ClientID, "err", err)
			return domain.Order{}, false
		}
		if found {
			order.Status = domain.OrderVerifiedGhost
			e.journalOrderStatus(ctx, req.ClientID, domain.OrderVerifiedGhost, order.FilledQty, order.AvgPrice)
			slog.Info("exec: ghost order verified as executed",
				"symbol", req.Symbol,
				"client_id", req.ClientID,
				"filled", order.FilledQty,
			)
			return order, true
		}
		e.journalOrderStatus(ctx, req.ClientID, domain.OrderRejected, 0, 0)
		slog.Info("exec: no ghost order on venue", "symbol", req.Symbol, "client_id", req.ClientID)
		return domain.Order{}, false

	default:
		slog.Error("exec: submission rejected",
			"symbol", req.Symbol,
			"side", string(req.Side),
			"qty", req.Quantity,
			"err", res.Err,
		)
		return domain.Order{}, false
	}
}

// unwindToCompletion submits opposite-side orders until qty is flat or
// the retry budget runs out, with backoff between attempts. Partial
// unwind fills shrink the remainder rather than restarting it.
func (e *Engine) unwindToCompletion(
	ctx context.Context,
	pairID, symbol string,
	side domain.OrderSide,
	qty float64,
	meta domain.InstrumentMeta,
) (filled, avgPrice float64, ok bool) {
	minLot := math.Pow(10, -float64(meta.QtyPrecision))
	remaining := qty
	var notional float64

	for attempt := 0; attempt <= e.cfg.UnwindRetries; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, e.cfg.RetryBackoff*time.Duration(attempt)) {
				break
			}
		}

		submitQty := roundDown(remaining, meta.QtyPrecision)
		if submitQty < minLot {
			break // remainder is below the tradable lot, treat as flat
		}

		order, submitted := e.submitVerified(ctx, pairID, domain.OrderRequest{
			ClientID: uuid.New().String(),
			Symbol:   symbol,
			Side:     side,
			Quantity: submitQty,
		})
		if !submitted {
			slog.Warn("exec: unwind attempt failed",
				"pair", pairID,
				"symbol", symbol,
				"attempt", attempt+1,
				"max", e.cfg.UnwindRetries+1,
			)
			continue
		}
		e.journalOrder(ctx, pairID, order)

		filled += order.FilledQty
		notional += order.FilledQty * fillPrice(order, 0)
		remaining -= order.FilledQty

		if remaining < minLot {
			if filled > 0 {
				avgPrice = notional / filled
			}
			return filled, avgPrice, true
		}
	}

	if filled > 0 {
		avgPrice = notional / filled
	}
	return filled, avgPrice, false
}

// rollbackLegA emergency-unwinds a filled leg A when the hedge cannot be
// confirmed. On success the position reverts to NONE; on exhaustion it
// escalates to ALERT.
func (e *Engine) rollbackLegA(
	ctx context.Context,
	pos *domain.Position,
	symbol string,
	entrySide domain.OrderSide,
	qty float64,
	meta domain.InstrumentMeta,
	reason string,
) {
	slog.Error("exec: emergency rollback initiated",
		"pair", pos.PairID,
		"symbol", symbol,
		"qty", qty,
		"reason", reason,
	)

	filled, _, ok := e.unwindToCompletion(ctx, pos.PairID, symbol, entrySide.Opposite(), qty, meta)
	if ok {
		e.journalPosition(ctx, e.mutate(pos, func(p *domain.Position) {
			p.Status = domain.PositionNone
		}))
		slog.Info("exec: emergency rollback complete, exposure is flat",
			"pair", pos.PairID,
			"unwound", filled,
		)
		return
	}

	e.escalate(ctx, pos, symbol, qty-filled, reason+": rollback retries exhausted")
}

// escalate parks the position in ALERT and surfaces it to the operator
// boundary. Automated remediation stops for this position; the engine
// keeps serving every other pair.
func (e *Engine) escalate(ctx context.Context, pos *domain.Position, symbol string, nakedQty float64, reason string) {
	e.journalPosition(ctx, e.mutate(pos, func(p *domain.Position) {
		p.Status = domain.PositionAlert
		p.AlertReason = reason
	}))

	alert := domain.Alert{
		PositionID: pos.ID,
		PairID:     pos.PairID,
		Symbol:     symbol,
		Quantity:   nakedQty,
		Reason:     reason,
		At:         time.Now().UTC(),
	}
	if e.journal != nil {
		if err := e.journal.SaveAlert(ctx, alert); err != nil {
			slog.Warn("exec: alert journal write failed", "err", err)
		}
	}
	if e.alerter != nil {
		if err := e.alerter.Alert(ctx, alert); err != nil {
			slog.Warn("exec: alert notification failed", "err", err)
		}
	}

	e.statsMu.Lock()
	e.alertCount++
	e.statsMu.Unlock()

	slog.Error("exec: ALERT — manual intervention required",
		"pair", pos.PairID,
		"symbol", symbol,
		"naked_qty", nakedQty,
		"reason", reason,
	)
}

// dropUnlessAlert removes the pair's reservation after a failed entry,
// unless the failure escalated — an ALERT position must keep blocking
// new entries on its pair.
func (e *Engine) dropUnlessAlert(pairID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pos, exists := e.positions[pairID]; exists && pos.Status != domain.PositionAlert {
		delete(e.positions, pairID)
	}
}

// mutate applies fn to a tracked position under the position-map lock
// and returns a snapshot safe to hand to the journal. Positions stay in
// the shared map while executions run, so every field write goes through
// here; Positions and Summary may then read concurrently.
func (e *Engine) mutate(pos *domain.Position, fn func(*domain.Position)) domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(pos)
	return *pos
}

func (e *Engine) journalOrder(ctx context.Context, pairID string, order domain.Order) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveOrder(ctx, pairID, order); err != nil {
		slog.Warn("exec: order journal write failed", "client_id", order.ClientID, "err", err)
	}
}

func (e *Engine) journalOrderStatus(ctx context.Context, clientID string, status domain.OrderStatus, filledQty, avgPrice float64) {
	if e.journal == nil {
		return
	}
	if err := e.journal.UpdateOrderStatus(ctx, clientID, status, filledQty, avgPrice); err != nil {
		slog.Warn("exec: order status journal write failed", "client_id", clientID, "err", err)
	}
}

func (e *Engine) journalPosition(ctx context.Context, pos domain.Position) {
	if e.journal == nil {
		return
	}
	var err error
	if pos.Status == domain.PositionOpening {
		err = e.journal.SavePosition(ctx, pos)
	} else {
		err = e.journal.UpdatePosition(ctx, pos)
	}
	if err != nil {
		slog.Warn("exec: position journal write failed", "pair", pos.PairID, "err", err)
	}
}

// orderFee returns the venue-reported fee, falling back to the
// configured rate over the filled notional.
func (e *Engine) orderFee(o domain.Order) float64 {
	if o.FeePaid > 0 {
		return o.FeePaid
	}
	return o.FilledQty * o.AvgPrice * e.cfg.FeeRate
}

// signedQty converts side + quantity into the position convention:
// positive long, negative short.
func signedQty(side domain.OrderSide, qty float64) float64 {
	if side == domain.SideBuy {
		return qty
	}
	return -qty
}

// unwindSide returns the side that flattens a signed quantity.
func unwindSide(signed float64) domain.OrderSide {
	if signed > 0 {
		return domain.SideSell
	}
	return domain.SideBuy
}

// fillPrice prefers the venue's average fill price, falling back to the
// pre-trade reference price.
func fillPrice(o domain.Order, fallback float64) float64 {
	if o.AvgPrice > 0 {
		return o.AvgPrice
	}
	return fallback
}

// sleepCtx sleeps for d unless ctx is cancelled first; returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

package domain

import "time"

// OrderStatus is the lifecycle of a single-leg order. Transitions are
// one-directional until a terminal status: SUBMITTED → {FILLED,
// PARTIALLY_FILLED, REJECTED, TIMEOUT_UNKNOWN}; TIMEOUT_UNKNOWN resolves
// to VERIFIED_GHOST (the venue has it) or stays unknown (it does not).
type OrderStatus string

const (
	OrderSubmitted       OrderStatus = "SUBMITTED"
	OrderFilled          OrderStatus = "FILLED"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderTimeoutUnknown  OrderStatus = "TIMEOUT_UNKNOWN"
	// OrderVerifiedGhost marks an order whose submission ack was lost but
	// which the venue confirms as executed when queried by client id.
	OrderVerifiedGhost OrderStatus = "VERIFIED_GHOST"
)

// Terminal returns true once no further transition is expected.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderPartiallyFilled, OrderRejected, OrderVerifiedGhost:
		return true
	}
	return false
}

// OrderSide is the direction of a single leg.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the unwind side for this side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderRequest is a market order submission. ClientID is caller-supplied
// and makes the submit idempotent on the venue side; it is also the key
// used to verify ghost orders after a lost acknowledgment.
type OrderRequest struct {
	ClientID string
	Symbol   string
	Side     OrderSide
	Quantity float64
}

// Order is the authoritative record of one leg as last reported by the
// venue. When status is ambiguous the venue is re-queried by ClientID.
type Order struct {
	ClientID     string
	VenueOrderID string
	Symbol       string
	Side         OrderSide
	Quantity     float64 // requested
	FilledQty    float64
	AvgPrice     float64
	FeePaid      float64
	Status       OrderStatus
	SubmittedAt  time.Time
}

// FillRatio returns filled/requested in 0..1.
func (o Order) FillRatio() float64 {
	if o.Quantity <= 0 {
		return 0
	}
	return o.FilledQty / o.Quantity
}

// SubmitOutcome classifies a submission attempt so the caller can branch
// on a typed case instead of inspecting error strings. A transient
// failure means the ack was lost and the order may or may not exist on
// the venue — the trigger for ghost-order verification, never a blind
// resubmit.
type SubmitOutcome int

const (
	SubmitFilled SubmitOutcome = iota
	SubmitTransientFailure
	SubmitPermanentFailure
)

func (o SubmitOutcome) String() string {
	switch o {
	case SubmitFilled:
		return "FILLED"
	case SubmitTransientFailure:
		return "TRANSIENT_FAILURE"
	case SubmitPermanentFailure:
		return "PERMANENT_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// SubmitResult is the tagged result of SubmitMarketOrder.
type SubmitResult struct {
	Outcome SubmitOutcome
	Order   Order // valid when Outcome == SubmitFilled
	Err     error // cause for the failure outcomes
}

// InstrumentMeta is the per-instrument trading metadata the execution
// engine needs: tradable precision and the venue's minimum order value.
type InstrumentMeta struct {
	Symbol         string
	QtyPrecision   int     // decimal places for quantity
	PricePrecision int
	MinNotional    float64 // minimum order value in quote units
}

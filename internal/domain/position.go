package domain

import (
	"math"
	"time"
)

// PositionStatus is the lifecycle of a hedged two-leg position.
//
//	NONE → OPENING → OPEN → CLOSING → CLOSED
//
// OPENING falls back to NONE on a pre-hedge abort. ALERT is terminal and
// reachable only from a failed emergency rollback: the engine stops
// automated remediation and escalates to the operator.
type PositionStatus string

const (
	PositionNone    PositionStatus = "NONE"
	PositionOpening PositionStatus = "OPENING"
	PositionOpen    PositionStatus = "OPEN"
	PositionClosing PositionStatus = "CLOSING"
	PositionClosed  PositionStatus = "CLOSED"
	PositionAlert   PositionStatus = "ALERT"
)

// Leg is one side of a position. Quantity is signed: positive long,
// negative short.
type Leg struct {
	Symbol     string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
}

// Position tracks an open (or closing) pair trade. Created when leg A of
// an entry fills; finalized to OPEN only once leg B is confirmed filled
// or ghost-verified; removed from the active set only on confirmed CLOSED.
type Position struct {
	ID          string
	PairID      string
	Direction   SignalDirection // entry direction that opened it
	LegA        Leg
	LegB        Leg
	Status      PositionStatus
	OpenTime    time.Time
	CloseTime   time.Time
	EntryZScore float64
	RealizedPnL float64
	FeesPaid    float64
	AlertReason string
}

// IsOpen returns true while either leg carries exposure.
func (p Position) IsOpen() bool {
	return math.Abs(p.LegA.Quantity) > 1e-9 || math.Abs(p.LegB.Quantity) > 1e-9
}

// Notional returns the absolute entry value of both legs combined.
func (p Position) Notional() float64 {
	return math.Abs(p.LegA.Quantity)*p.LegA.EntryPrice +
		math.Abs(p.LegB.Quantity)*p.LegB.EntryPrice
}

// RealizePnL computes the realized result from entry/exit prices on both
// legs, net of the given fees. Signed leg quantities make the formula
// direction-agnostic.
func (p *Position) RealizePnL(fees float64) float64 {
	pnlA := (p.LegA.ExitPrice - p.LegA.EntryPrice) * p.LegA.Quantity
	pnlB := (p.LegB.ExitPrice - p.LegB.EntryPrice) * p.LegB.Quantity
	p.RealizedPnL = pnlA + pnlB - fees
	p.FeesPaid = fees
	return p.RealizedPnL
}

// Alert is the record surfaced to the operator boundary when a rollback
// exhausts its retry budget and a position enters ALERT.
type Alert struct {
	PositionID string
	PairID     string
	Symbol     string
	Quantity   float64
	Reason     string
	At         time.Time
}

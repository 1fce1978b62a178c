package domain

import (
	"fmt"
	"time"
)

// SignalDirection classifies what the spread engine wants done.
type SignalDirection string

const (
	// EnterLong: spread is far below its mean — buy leg B, sell leg A.
	EnterLong SignalDirection = "ENTER_LONG"
	// EnterShort: spread is far above its mean — sell leg B, buy leg A.
	EnterShort SignalDirection = "ENTER_SHORT"
	// Exit: spread reverted, unwind the open position.
	Exit SignalDirection = "EXIT"
	// Stop: spread blew through the stop threshold — the statistical
	// relationship has likely broken down, unwind immediately.
	Stop SignalDirection = "STOP"
)

// IsEntry returns true for directions that open a position.
func (d SignalDirection) IsEntry() bool {
	return d == EnterLong || d == EnterShort
}

// TradingSignal is an ephemeral trade decision emitted by the spread
// engine. It is consumed exactly once by the execution engine and never
// persisted.
type TradingSignal struct {
	PairID       string
	LegA         string
	LegB         string
	Direction    SignalDirection
	ZScore       float64
	Confidence   float64 // 0..1
	SizeFraction float64 // 0..1, confidence scaled by risk multiplier
	HedgeRatio   float64 // β at emission time
	At           time.Time
}

// Key is the concurrency-control identity: at most one execution may be
// in flight per (pair, direction) at any instant.
func (s TradingSignal) Key() string {
	return s.PairID + "|" + string(s.Direction)
}

func (s TradingSignal) String() string {
	return fmt.Sprintf("%s %s z=%.2f conf=%.2f size=%.2f β=%.4f",
		s.Direction, s.PairID, s.ZScore, s.Confidence, s.SizeFraction, s.HedgeRatio)
}

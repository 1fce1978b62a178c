package spread

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler records every signal and answers with a configurable
// accept/reject decision.
type fakeHandler struct {
	signals []domain.TradingSignal
	accept  bool
}

func (h *fakeHandler) Execute(_ context.Context, sig domain.TradingSignal) bool {
	h.signals = append(h.signals, sig)
	return h.accept
}

func testPair() domain.PairCandidate {
	return domain.PairCandidate{
		PairID:     "AAAUSDT-BBBUSDT",
		LegA:       "AAAUSDT",
		LegB:       "BBBUSDT",
		HedgeRatio: 1.0,
	}
}

func testSettings() domain.PairSettings {
	return domain.PairSettings{
		EntryZ:          2.0,
		ExitZ:           0.5,
		StopZ:           4.0,
		WindowSize:      50,
		MinSamples:      10,
		DuplicateWindow: 30 * time.Second,
		RiskMultiplier:  0.75,
	}
}

// warmUp seeds the window with alternating small spread moves: leg A
// fixed at 100, leg B oscillating tightly around 100.
func warmUp(ctx context.Context, e *Engine, start time.Time, samples int) time.Time {
	at := start
	e.OnTick(ctx, domain.Tick{Symbol: "AAAUSDT", Price: 100, Timestamp: at})
	for i := 0; i < samples; i++ {
		at = at.Add(time.Second)
		price := 100.1
		if i%2 == 1 {
			price = 99.9
		}
		e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: price, Timestamp: at})
	}
	return at
}

func TestEngine_EmitsEnterLongOnNegativeDeviation(t *testing.T) {
	ctx := context.Background()
	h := &fakeHandler{accept: true}
	e := NewEngine(testPair(), testSettings(), h)

	at := warmUp(ctx, e, time.Unix(1_700_000_000, 0), 12)
	require.Empty(t, h.signals, "no signal during warmup")

	// Leg B collapses: spread far below the window mean.
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 95, Timestamp: at.Add(time.Second)})

	require.Len(t, h.signals, 1)
	sig := h.signals[0]
	assert.Equal(t, domain.EnterLong, sig.Direction)
	assert.Equal(t, "AAAUSDT-BBBUSDT", sig.PairID)
	assert.Negative(t, sig.ZScore)
	assert.LessOrEqual(t, sig.ZScore, -2.0)

	// |z| well past the entry threshold → confidence saturates at 1,
	// scaled by the 0.75 risk multiplier.
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
	assert.InDelta(t, 0.75, sig.SizeFraction, 1e-9)
}

func TestEngine_EmitsEnterShortOnPositiveDeviation(t *testing.T) {
	ctx := context.Background()
	h := &fakeHandler{accept: true}
	e := NewEngine(testPair(), testSettings(), h)

	at := warmUp(ctx, e, time.Unix(1_700_000_000, 0), 12)
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 106, Timestamp: at.Add(time.Second)})

	require.Len(t, h.signals, 1)
	assert.Equal(t, domain.EnterShort, h.signals[0].Direction)
	assert.GreaterOrEqual(t, h.signals[0].ZScore, 2.0)
}

func TestEngine_ExitWhenSpreadReverts(t *testing.T) {
	ctx := context.Background()
	h := &fakeHandler{accept: true}
	e := NewEngine(testPair(), testSettings(), h)

	at := warmUp(ctx, e, time.Unix(1_700_000_000, 0), 12)
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 95, Timestamp: at.Add(time.Second)})
	require.Len(t, h.signals, 1)
	require.Equal(t, domain.EnterLong, h.signals[0].Direction)

	// Spread reverts to the window mean → EXIT.
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 99.6, Timestamp: at.Add(2 * time.Second)})

	require.Len(t, h.signals, 2)
	assert.Equal(t, domain.Exit, h.signals[1].Direction)
}

func TestEngine_StopOnBlowout(t *testing.T) {
	ctx := context.Background()
	h := &fakeHandler{accept: true}
	e := NewEngine(testPair(), testSettings(), h)

	// A longer warmup so one extreme sample cannot dominate the window's
	// own deviation — |z| saturates near sqrt(n) otherwise.
	at := warmUp(ctx, e, time.Unix(1_700_000_000, 0), 30)
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 95, Timestamp: at.Add(time.Second)})
	require.Len(t, h.signals, 1)

	// The spread keeps widening instead of reverting → STOP, not EXIT.
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 80, Timestamp: at.Add(2 * time.Second)})

	require.Len(t, h.signals, 2)
	assert.Equal(t, domain.Stop, h.signals[1].Direction)
}

func TestEngine_SuppressesDuplicateEntries(t *testing.T) {
	ctx := context.Background()
	h := &fakeHandler{accept: false} // handler rejects, engine stays neutral
	e := NewEngine(testPair(), testSettings(), h)

	at := warmUp(ctx, e, time.Unix(1_700_000_000, 0), 12)
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 95, Timestamp: at.Add(time.Second)})
	require.Len(t, h.signals, 1)

	// Threshold noise within the suppression window: no re-emission even
	// though the engine is still neutral.
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 94.8, Timestamp: at.Add(5 * time.Second)})
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 94.5, Timestamp: at.Add(20 * time.Second)})
	assert.Len(t, h.signals, 1)

	// Past the window the same direction may fire again.
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 92, Timestamp: at.Add(40 * time.Second)})
	assert.Len(t, h.signals, 2)
}

func TestEngine_KeepsStateWhenUnwindRejected(t *testing.T) {
	ctx := context.Background()
	h := &fakeHandler{accept: true}
	e := NewEngine(testPair(), testSettings(), h)

	at := warmUp(ctx, e, time.Unix(1_700_000_000, 0), 12)
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 95, Timestamp: at.Add(time.Second)})
	require.Len(t, h.signals, 1)

	// Exit attempt is rejected: the engine must retry on the next tick
	// rather than silently marking itself flat.
	h.accept = false
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 99.6, Timestamp: at.Add(2 * time.Second)})
	require.Len(t, h.signals, 2)
	require.Equal(t, domain.Exit, h.signals[1].Direction)

	h.accept = true
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 99.7, Timestamp: at.Add(3 * time.Second)})
	require.Len(t, h.signals, 3)
	assert.Equal(t, domain.Exit, h.signals[2].Direction)
}

func TestEngine_IgnoresForeignSymbols(t *testing.T) {
	ctx := context.Background()
	h := &fakeHandler{accept: true}
	e := NewEngine(testPair(), testSettings(), h)

	at := warmUp(ctx, e, time.Unix(1_700_000_000, 0), 12)
	e.OnTick(ctx, domain.Tick{Symbol: "ZZZUSDT", Price: 1, Timestamp: at.Add(time.Second)})
	e.OnTick(ctx, domain.Tick{Symbol: "BBBUSDT", Price: 95, Timestamp: at.Add(2 * time.Second)})

	require.Len(t, h.signals, 1)
	assert.Equal(t, domain.EnterLong, h.signals[0].Direction)
}

func TestEngine_NoSignalBeforeBothLegs(t *testing.T) {
	ctx := context.Background()
	h := &fakeHandler{accept: true}
	e := NewEngine(testPair(), testSettings(), h)

	for i := 0; i < 30; i++ {
		e.OnTick(ctx, domain.Tick{
			Symbol:    "BBBUSDT",
			Price:     100 + float64(i),
			Timestamp: time.Unix(1_700_000_000+int64(i), 0),
		})
	}
	assert.Empty(t, h.signals, "one-legged stream must not produce spreads")
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleCandidate(pairID string, cointP float64) domain.PairCandidate {
	return domain.PairCandidate{
		PairID:         pairID,
		LegA:           "AAAUSDT",
		LegB:           "BBBUSDT",
		HedgeRatio:     0.85,
		Correlation:    0.92,
		ADFStatistic:   -3.8,
		ADFPValue:      0.012,
		CointStatistic: -4.1,
		CointPValue:    cointP,
		HalfLifeHours:  6.5,
		ScannedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLiteStore_ScanRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first := []domain.PairCandidate{sampleCandidate("OLD-PAIR", 0.04)}
	require.NoError(t, store.SaveScanRun(ctx, time.Now().Add(-time.Hour), 5, first))

	latest := []domain.PairCandidate{
		sampleCandidate("AAAUSDT-BBBUSDT", 0.001),
		sampleCandidate("AAAUSDT-CCCUSDT", 0.02),
	}
	require.NoError(t, store.SaveScanRun(ctx, time.Now(), 10, latest))

	got, err := store.LatestCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2, "only the most recent run is returned")
	assert.Equal(t, "AAAUSDT-BBBUSDT", got[0].PairID, "rank order preserved")
	assert.InDelta(t, 0.85, got[0].HedgeRatio, 1e-9)
	assert.InDelta(t, 0.001, got[0].CointPValue, 1e-9)
}

func TestSQLiteStore_LatestCandidatesEmpty(t *testing.T) {
	store := openTestStore(t)
	got, err := store.LatestCandidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_OrderUpsert(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	order := domain.Order{
		ClientID:     "client-1",
		VenueOrderID: "999",
		Symbol:       "AAAUSDT",
		Side:         domain.SideSell,
		Quantity:     1.5,
		FilledQty:    1.5,
		AvgPrice:     100.2,
		Status:       domain.OrderFilled,
		SubmittedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.SaveOrder(ctx, "AAAUSDT-BBBUSDT", order))

	// Re-saving the same client id must update, not duplicate.
	order.Status = domain.OrderVerifiedGhost
	require.NoError(t, store.SaveOrder(ctx, "AAAUSDT-BBBUSDT", order))

	require.NoError(t, store.UpdateOrderStatus(ctx, "client-1", domain.OrderFilled, 1.5, 100.3))
}

func TestSQLiteStore_PositionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	pos := domain.Position{
		ID:        "pos-1",
		PairID:    "AAAUSDT-BBBUSDT",
		Direction: domain.EnterLong,
		Status:    domain.PositionOpening,
		LegA:      domain.Leg{Symbol: "AAAUSDT", Quantity: -1.5, EntryPrice: 100},
		LegB:      domain.Leg{Symbol: "BBBUSDT", Quantity: 2.4, EntryPrice: 50},
		OpenTime:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SavePosition(ctx, pos))

	pos.Status = domain.PositionOpen
	require.NoError(t, store.UpdatePosition(ctx, pos))

	open, err := store.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.PositionOpen, open[0].Status)
	assert.InDelta(t, -1.5, open[0].LegA.Quantity, 1e-9)
	assert.Equal(t, domain.EnterLong, open[0].Direction)

	pos.Status = domain.PositionClosed
	pos.CloseTime = time.Now().UTC()
	pos.RealizedPnL = 14.78
	require.NoError(t, store.UpdatePosition(ctx, pos))

	open, err = store.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open, "closed positions leave the open set")
}

func TestSQLiteStore_OpeningPositionsStayVisible(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	// A crash between the leg A fill and the leg B submission leaves an
	// OPENING row whose leg A is live on the venue; a restart must see it.
	pos := domain.Position{
		ID:        "pos-4",
		PairID:    "AAAUSDT-BBBUSDT",
		Direction: domain.EnterLong,
		Status:    domain.PositionOpening,
		LegA:      domain.Leg{Symbol: "AAAUSDT", Quantity: -1.5, EntryPrice: 100},
		OpenTime:  time.Now().UTC(),
	}
	require.NoError(t, store.SavePosition(ctx, pos))

	open, err := store.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.PositionOpening, open[0].Status)
	assert.InDelta(t, -1.5, open[0].LegA.Quantity, 1e-9)
}

func TestSQLiteStore_AlertPositionsStayVisible(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	pos := domain.Position{
		ID:          "pos-2",
		PairID:      "AAAUSDT-BBBUSDT",
		Direction:   domain.EnterShort,
		Status:      domain.PositionAlert,
		LegA:        domain.Leg{Symbol: "AAAUSDT", Quantity: 1.5, EntryPrice: 100},
		AlertReason: "leg B unwind failed, retries exhausted",
	}
	require.NoError(t, store.SavePosition(ctx, pos))

	open, err := store.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1, "ALERT positions need operator review and must stay listed")
	assert.Equal(t, domain.PositionAlert, open[0].Status)
	assert.NotEmpty(t, open[0].AlertReason)
}

func TestSQLiteStore_SaveAlert(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	alert := domain.Alert{
		PositionID: "pos-3",
		PairID:     "AAAUSDT-BBBUSDT",
		Symbol:     "AAAUSDT",
		Quantity:   0.75,
		Reason:     "partial leg A unwind, retries exhausted",
		At:         time.Now().UTC(),
	}
	assert.NoError(t, store.SaveAlert(ctx, alert))
}

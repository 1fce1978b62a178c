package trader

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/statarb/internal/application/execution"
	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFeed replays a fixed tick script and closes the channel.
type fakeFeed struct {
	ticks      []domain.Tick
	subscribed []string
}

func (f *fakeFeed) Subscribe(_ context.Context, symbols []string) (<-chan domain.Tick, error) {
	f.subscribed = symbols
	ch := make(chan domain.Tick, len(f.ticks))
	go func() {
		defer close(ch)
		for _, tick := range f.ticks {
			ch <- tick
		}
	}()
	return ch, nil
}

// stubExchange satisfies ports.Exchange with fixed answers; no scripted
// signal will reach it in these tests.
type stubExchange struct{}

func (stubExchange) SubmitMarketOrder(_ context.Context, req domain.OrderRequest) domain.SubmitResult {
	return domain.SubmitResult{Outcome: domain.SubmitFilled, Order: domain.Order{
		ClientID: req.ClientID, Symbol: req.Symbol, Side: req.Side,
		Quantity: req.Quantity, FilledQty: req.Quantity, AvgPrice: 100,
		Status: domain.OrderFilled,
	}}
}
func (stubExchange) QueryOrder(context.Context, string, string) (domain.Order, bool, error) {
	return domain.Order{}, false, nil
}
func (stubExchange) InstrumentMeta(_ context.Context, symbol string) (domain.InstrumentMeta, error) {
	return domain.InstrumentMeta{Symbol: symbol, QtyPrecision: 2, MinNotional: 10}, nil
}
func (stubExchange) LastPrice(context.Context, string) (float64, error) { return 100, nil }
func (stubExchange) AccountEquity(context.Context) (float64, error)     { return 10_000, nil }

func TestCollectSymbols_DeduplicatesSharedLegs(t *testing.T) {
	pairs := []domain.PairCandidate{
		{PairID: "A-B", LegA: "AAAUSDT", LegB: "BBBUSDT"},
		{PairID: "A-C", LegA: "AAAUSDT", LegB: "CCCUSDT"},
	}
	symbols := collectSymbols(pairs)
	assert.Equal(t, []string{"AAAUSDT", "BBBUSDT", "CCCUSDT"}, symbols)
}

func TestTrader_RunDrainsAndStops(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	feed := &fakeFeed{ticks: []domain.Tick{
		{Symbol: "AAAUSDT", Price: 100, Timestamp: at},
		{Symbol: "BBBUSDT", Price: 50, Timestamp: at.Add(time.Second)},
		{Symbol: "BBBUSDT", Price: 50.1, Timestamp: at.Add(2 * time.Second)},
	}}
	executor := execution.New(stubExchange{}, nil, nil, execution.DefaultConfig())

	pairs := []domain.PairCandidate{{
		PairID: "AAAUSDT-BBBUSDT", LegA: "AAAUSDT", LegB: "BBBUSDT", HedgeRatio: 1,
	}}
	tr := New(feed, executor, pairs, domain.PairSettings{})

	err := tr.Run(context.Background())
	require.NoError(t, err, "feed closing ends the session cleanly")
	assert.Equal(t, []string{"AAAUSDT", "BBBUSDT"}, feed.subscribed)
	assert.Empty(t, executor.Positions(), "three warmup ticks cannot open a position")
}

func TestTrader_NoPairs(t *testing.T) {
	executor := execution.New(stubExchange{}, nil, nil, execution.DefaultConfig())
	tr := New(&fakeFeed{}, executor, nil, domain.PairSettings{})
	assert.Error(t, tr.Run(context.Background()))
}

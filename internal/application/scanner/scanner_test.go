package scanner

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHistory serves pre-built series from memory.
type fakeHistory struct {
	series map[string]domain.PriceSeries
}

func (f *fakeHistory) FetchSeries(_ context.Context, symbols []string, _ int) (map[string]domain.PriceSeries, error) {
	out := make(map[string]domain.PriceSeries, len(symbols))
	for _, sym := range symbols {
		if s, ok := f.series[sym]; ok {
			out[sym] = s
		}
	}
	return out, nil
}

func toSeries(symbol string, prices []float64) domain.PriceSeries {
	base := time.Unix(1_700_000_000, 0)
	points := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = domain.PricePoint{Timestamp: base.Add(time.Duration(i) * time.Hour), Price: p}
	}
	return domain.PriceSeries{Symbol: symbol, Points: points}
}

// cointegratedPrices builds two price series sharing a random-walk log
// trend, with a fast-reverting stationary spread between them.
func cointegratedPrices(rng *rand.Rand, n int, beta float64) (a, b []float64) {
	a = make([]float64, n)
	b = make([]float64, n)
	logA := math.Log(100.0)
	spread := 0.0
	for i := 0; i < n; i++ {
		logA += rng.NormFloat64() * 0.01
		spread = 0.5*spread + rng.NormFloat64()*0.004
		a[i] = math.Exp(logA)
		b[i] = math.Exp(beta*logA + spread)
	}
	return a, b
}

func randomWalkPrices(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	logP := math.Log(50.0)
	for i := 0; i < n; i++ {
		logP += rng.NormFloat64() * 0.02
		out[i] = math.Exp(logP)
	}
	return out
}

func testScanConfig(lookback int) Config {
	cfg := DefaultConfig()
	cfg.Lookback = lookback
	cfg.AnalysisWorkers = 2
	return cfg
}

func TestScanner_FindsCointegratedPair(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	n := 600

	pa, pb := cointegratedPrices(rng, n, 0.9)
	history := &fakeHistory{series: map[string]domain.PriceSeries{
		"AAAUSDT": toSeries("AAAUSDT", pa),
		"BBBUSDT": toSeries("BBBUSDT", pb),
		"CCCUSDT": toSeries("CCCUSDT", randomWalkPrices(rng, n)),
	}}

	s := New(testScanConfig(n), history, nil, nil)
	candidates, err := s.Run(context.Background(), []string{"AAAUSDT", "BBBUSDT", "CCCUSDT"})
	require.NoError(t, err)

	require.NotEmpty(t, candidates, "the constructed pair must be discovered")
	top := candidates[0]
	assert.Equal(t, "AAAUSDT-BBBUSDT", top.PairID)
	assert.InDelta(t, 0.9, top.HedgeRatio, 0.1)
	assert.Less(t, top.CointPValue, 0.05)
	assert.Less(t, top.ADFPValue, 0.05)
	assert.Less(t, top.HalfLifeHours, 24.0)
}

func TestScanner_RejectsIndependentWalks(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	n := 600

	history := &fakeHistory{series: map[string]domain.PriceSeries{
		"AAAUSDT": toSeries("AAAUSDT", randomWalkPrices(rng, n)),
		"BBBUSDT": toSeries("BBBUSDT", randomWalkPrices(rng, n)),
	}}

	s := New(testScanConfig(n), history, nil, nil)
	candidates, err := s.Run(context.Background(), []string{"AAAUSDT", "BBBUSDT"})
	require.NoError(t, err)
	assert.Empty(t, candidates, "independent random walks are not a tradable pair")
}

func TestScanner_SkipsShortHistory(t *testing.T) {
	rng := rand.New(rand.NewSource(25))
	n := 600

	pa, pb := cointegratedPrices(rng, n, 1.0)
	history := &fakeHistory{series: map[string]domain.PriceSeries{
		"AAAUSDT": toSeries("AAAUSDT", pa),
		"BBBUSDT": toSeries("BBBUSDT", pb[:100]), // truncated feed
	}}

	s := New(testScanConfig(n), history, nil, nil)
	candidates, err := s.Run(context.Background(), []string{"AAAUSDT", "BBBUSDT"})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestScanner_UniverseTooSmall(t *testing.T) {
	s := New(DefaultConfig(), &fakeHistory{}, nil, nil)
	_, err := s.Run(context.Background(), []string{"AAAUSDT"})
	assert.Error(t, err)
}

func TestScanner_TopNCapsOutput(t *testing.T) {
	rng := rand.New(rand.NewSource(27))
	n := 500

	// Five instruments all cointegrated with each other through a shared
	// trend → 10 candidate pairs, capped at 3.
	series := make(map[string]domain.PriceSeries)
	symbols := []string{"AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT", "EEEUSDT"}
	pa, _ := cointegratedPrices(rng, n, 1.0)
	for i, sym := range symbols {
		prices := make([]float64, n)
		noise := 0.0
		for j := range prices {
			if i > 0 {
				noise = 0.5*noise + rng.NormFloat64()*0.002
			}
			prices[j] = pa[j] * math.Exp(noise)
		}
		series[sym] = toSeries(sym, prices)
	}

	cfg := testScanConfig(n)
	cfg.TopN = 3
	s := New(cfg, &fakeHistory{series: series}, nil, nil)

	candidates, err := s.Run(context.Background(), symbols)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(candidates), 3)
	assert.NotEmpty(t, candidates)

	// Ranked by ascending cointegration p-value.
	for i := 1; i < len(candidates); i++ {
		assert.LessOrEqual(t, candidates[i-1].CointPValue, candidates[i].CointPValue)
	}
}

func TestMakeCombos(t *testing.T) {
	combos := makeCombos([]string{"A", "B", "C"})
	require.Len(t, combos, 3)
	assert.Equal(t, combo{legA: "A", legB: "B"}, combos[0])
	assert.Equal(t, combo{legA: "A", legB: "C"}, combos[1])
	assert.Equal(t, combo{legA: "B", legB: "C"}, combos[2])
}

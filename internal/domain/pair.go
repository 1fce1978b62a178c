package domain

import "time"

// Tick is one normalized price sample from the live feed.
type Tick struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// PricePoint is one sample of a historical series used by the scanner.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

// PriceSeries is the ordered price history of one instrument.
// Immutable once loaded for a scan run.
type PriceSeries struct {
	Symbol string
	Points []PricePoint
}

// Prices returns the raw price values in order.
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// PairCandidate is a validated cointegrated pair produced by the scanner.
// Consumed read-only by the spread engine at startup.
type PairCandidate struct {
	PairID         string  `yaml:"pair_id"`
	LegA           string  `yaml:"leg_a"`
	LegB           string  `yaml:"leg_b"`
	HedgeRatio     float64 `yaml:"hedge_ratio"`
	Correlation    float64 `yaml:"correlation"`
	ADFStatistic   float64 `yaml:"adf_statistic"`
	ADFPValue      float64 `yaml:"adf_p_value"`
	CointStatistic float64 `yaml:"coint_statistic"`
	CointPValue    float64 `yaml:"coint_p_value"`
	HalfLifeHours  float64 `yaml:"half_life_hours"`

	ScannedAt time.Time `yaml:"scanned_at"`
}

// PairSettings are the trading thresholds handed to each spread engine,
// assembled from the trading section of the config.
type PairSettings struct {
	EntryZ          float64
	ExitZ           float64
	StopZ           float64
	WindowSize      int
	MinSamples      int
	AdaptiveHedge   bool
	DuplicateWindow time.Duration
	RiskMultiplier  float64
}

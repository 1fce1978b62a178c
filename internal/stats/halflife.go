package stats

import "math"

const minHalfLifeSamples = 10

// HalfLife estimates the mean-reversion half-life of a spread series in
// periods, from the AR(1)-style fit
//
//	Δy_t = α + λ·y_{t-1} + ε_t
//	half-life = −ln(2) / ln(1 + λ)
//
// Returns +Inf when λ ≥ 0 (no mean reversion) and clamps the result to a
// minimum of one period.
func HalfLife(series []float64) (float64, error) {
	if len(series) < minHalfLifeSamples {
		return 0, ErrInsufficientData
	}

	n := len(series)
	lagged := series[:n-1]
	delta := make([]float64, n-1)
	for i := 1; i < n; i++ {
		delta[i-1] = series[i] - series[i-1]
	}

	reg, err := OLS(lagged, delta)
	if err != nil {
		return 0, err
	}

	lambda := reg.Beta
	if lambda >= 0 || 1+lambda <= 0 {
		return math.Inf(1), nil
	}

	hl := -math.Ln2 / math.Log(1+lambda)
	return math.Max(hl, 1.0), nil
}

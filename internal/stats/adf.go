package stats

import "math"

// ADFResult holds a unit-root test outcome. The null hypothesis is that
// the series has a unit root (non-stationary); a small p-value rejects
// it in favor of stationarity.
type ADFResult struct {
	Statistic float64
	PValue    float64
	Lags      int
	N         int
}

// CointResult is the outcome of the Engle-Granger two-step test on a
// candidate pair. HedgeRatio is the OLS slope of logY on logX; the
// residual spread is scored against the Engle-Granger distribution,
// whose critical values account for β being estimated.
type CointResult struct {
	HedgeRatio float64
	Intercept  float64
	Statistic  float64
	PValue     float64
	Residuals  []float64
}

// tauPoint maps a cumulative probability to a test-statistic quantile.
type tauPoint struct {
	p   float64
	tau float64
}

// Asymptotic quantiles of the Dickey-Fuller tau distribution,
// constant-only case (MacKinnon). Interpolated linearly for p-values.
var dfConstantTable = []tauPoint{
	{0.01, -3.43},
	{0.025, -3.12},
	{0.05, -2.86},
	{0.10, -2.57},
	{0.50, -1.57},
	{0.90, -0.44},
	{0.95, -0.07},
	{0.975, 0.23},
	{0.99, 0.60},
}

// Engle-Granger residual-test quantiles for two variables with constant
// (MacKinnon). Stricter than the plain DF table because the hedge ratio
// is itself estimated from the same sample.
var egTwoVarTable = []tauPoint{
	{0.01, -3.90},
	{0.025, -3.64},
	{0.05, -3.34},
	{0.10, -3.04},
	{0.50, -2.18},
	{0.90, -1.39},
	{0.95, -1.09},
	{0.99, -0.53},
}

const (
	pValueFloor = 0.001
	pValueCeil  = 0.999
)

// tauPValue interpolates an approximate p-value for stat from the given
// quantile table, clamped to [pValueFloor, pValueCeil].
func tauPValue(table []tauPoint, stat float64) float64 {
	if stat <= table[0].tau {
		return pValueFloor
	}
	last := table[len(table)-1]
	if stat >= last.tau {
		return pValueCeil
	}
	for i := 1; i < len(table); i++ {
		if stat <= table[i].tau {
			lo, hi := table[i-1], table[i]
			frac := (stat - lo.tau) / (hi.tau - lo.tau)
			return lo.p + frac*(hi.p-lo.p)
		}
	}
	return pValueCeil
}

// ADF runs an augmented Dickey-Fuller test with constant:
//
//	Δy_t = α + γ·y_{t-1} + Σ δ_i·Δy_{t-i} + ε_t
//
// and returns the t-statistic of γ with its approximate p-value. A
// negative lag selects the default `floor(cbrt(n))`.
func ADF(series []float64, lag int) (ADFResult, error) {
	n := len(series)
	if lag < 0 {
		lag = int(math.Cbrt(float64(n)))
	}
	// Need enough observations for the lagged design matrix plus a few
	// degrees of freedom.
	if n < lag+10 {
		return ADFResult{}, ErrInsufficientData
	}

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = series[i] - series[i-1]
	}

	// Rows start after the longest lag. Columns: y_{t-1}, Δy_{t-1..lag}, const.
	rows := len(diff) - lag
	k := 2 + lag
	X := make([][]float64, rows)
	y := make([]float64, rows)
	for r := 0; r < rows; r++ {
		t := r + lag // index into diff
		row := make([]float64, k)
		row[0] = series[t] // y_{t-1} relative to diff[t]
		for i := 1; i <= lag; i++ {
			row[i] = diff[t-i]
		}
		row[k-1] = 1
		X[r] = row
		y[r] = diff[t]
	}

	coef, stderr, err := olsMulti(X, y)
	if err != nil {
		return ADFResult{}, err
	}
	if stderr[0] < 1e-12 {
		return ADFResult{}, ErrSingular
	}

	stat := coef[0] / stderr[0]
	return ADFResult{
		Statistic: stat,
		PValue:    tauPValue(dfConstantTable, stat),
		Lags:      lag,
		N:         rows,
	}, nil
}

// EngleGranger runs the two-step cointegration test on a pair of log
// price series: OLS of logY on logX, then a unit-root test on the
// residuals against the Engle-Granger critical values.
func EngleGranger(logX, logY []float64) (CointResult, error) {
	reg, err := OLS(logX, logY)
	if err != nil {
		return CointResult{}, err
	}

	resid := make([]float64, len(logX))
	for i := range logX {
		resid[i] = logY[i] - reg.Alpha - reg.Beta*logX[i]
	}

	adf, err := ADF(resid, -1)
	if err != nil {
		return CointResult{}, err
	}

	return CointResult{
		HedgeRatio: reg.Beta,
		Intercept:  reg.Alpha,
		Statistic:  adf.Statistic,
		PValue:     tauPValue(egTwoVarTable, adf.Statistic),
		Residuals:  resid,
	}, nil
}

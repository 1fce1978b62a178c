// Package stats implements the numeric routines behind pair discovery
// and signal generation: ordinary least squares, unit-root and
// cointegration testing, mean-reversion half-life, and rolling-window
// moments. Pure functions over float64 series — no I/O, no state.
package stats

import (
	"errors"
	"math"
)

var (
	// ErrInsufficientData is returned when a series is too short for the
	// requested computation.
	ErrInsufficientData = errors.New("stats: insufficient data")
	// ErrSingular is returned when a regression is numerically singular
	// (e.g. the regressor has zero variance).
	ErrSingular = errors.New("stats: singular regression")
	// ErrLengthMismatch is returned when paired series differ in length.
	ErrLengthMismatch = errors.New("stats: series length mismatch")
)

// Regression holds the result of a simple OLS fit y = α + β·x + ε.
type Regression struct {
	Alpha    float64 // intercept
	Beta     float64 // slope
	RSquared float64
	BetaSE   float64 // standard error of the slope
	N        int
}

// OLS fits y = α + β·x by ordinary least squares. Used on log prices to
// estimate the hedge ratio β.
func OLS(x, y []float64) (Regression, error) {
	if len(x) != len(y) {
		return Regression{}, ErrLengthMismatch
	}
	n := len(x)
	if n < 3 {
		return Regression{}, ErrInsufficientData
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy, syy float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	if sxx < 1e-12 {
		return Regression{}, ErrSingular
	}

	beta := sxy / sxx
	alpha := meanY - beta*meanX

	// Residual sum of squares and R².
	var rss float64
	for i := 0; i < n; i++ {
		resid := y[i] - alpha - beta*x[i]
		rss += resid * resid
	}
	r2 := 0.0
	if syy > 1e-12 {
		r2 = 1 - rss/syy
	}

	se := 0.0
	if n > 2 {
		sigma2 := rss / float64(n-2)
		se = math.Sqrt(sigma2 / sxx)
	}

	return Regression{Alpha: alpha, Beta: beta, RSquared: r2, BetaSE: se, N: n}, nil
}

// Correlation returns the Pearson correlation of x and y, or 0 when
// either series is degenerate. Used as the scanner's cheap pre-filter
// before the full cointegration pipeline.
func Correlation(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, syy, sxy float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}

	denom := math.Sqrt(sxx * syy)
	if denom < 1e-12 {
		return 0
	}
	return sxy / denom
}

// Spread computes log(y) − β·log(x) for each sample. Inputs must be
// strictly positive; callers validate prices before reaching here.
func Spread(logX, logY []float64, beta float64) []float64 {
	n := len(logX)
	spread := make([]float64, n)
	for i := 0; i < n; i++ {
		spread[i] = logY[i] - beta*logX[i]
	}
	return spread
}

// Log returns the element-wise natural log of prices, or
// ErrInsufficientData-compatible failure on non-positive values.
func Log(prices []float64) ([]float64, error) {
	out := make([]float64, len(prices))
	for i, p := range prices {
		if p <= 0 {
			return nil, errors.New("stats: non-positive price")
		}
		out[i] = math.Log(p)
	}
	return out, nil
}

// olsMulti fits y = X·b by least squares via the normal equations and
// returns the coefficients with their standard errors. X rows are
// observations; callers include the constant column themselves. Small
// systems only (ADF design matrices), solved by Gauss-Jordan with
// partial pivoting.
func olsMulti(X [][]float64, y []float64) (coef, stderr []float64, err error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return nil, nil, ErrLengthMismatch
	}
	k := len(X[0])
	if n <= k {
		return nil, nil, ErrInsufficientData
	}

	// X'X and X'y.
	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
	}
	for r := 0; r < n; r++ {
		row := X[r]
		for i := 0; i < k; i++ {
			xty[i] += row[i] * y[r]
			for j := i; j < k; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < k; i++ {
		for j := 0; j < i; j++ {
			xtx[i][j] = xtx[j][i]
		}
	}

	inv, err := invert(xtx)
	if err != nil {
		return nil, nil, err
	}

	coef = make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			coef[i] += inv[i][j] * xty[j]
		}
	}

	var rss float64
	for r := 0; r < n; r++ {
		pred := 0.0
		for i := 0; i < k; i++ {
			pred += X[r][i] * coef[i]
		}
		resid := y[r] - pred
		rss += resid * resid
	}
	sigma2 := rss / float64(n-k)

	stderr = make([]float64, k)
	for i := 0; i < k; i++ {
		stderr[i] = math.Sqrt(sigma2 * inv[i][i])
	}
	return coef, stderr, nil
}

// invert returns the inverse of a small symmetric positive matrix by
// Gauss-Jordan elimination with partial pivoting.
func invert(m [][]float64) ([][]float64, error) {
	k := len(m)
	aug := make([][]float64, k)
	for i := 0; i < k; i++ {
		aug[i] = make([]float64, 2*k)
		copy(aug[i], m[i])
		aug[i][k+i] = 1
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return nil, ErrSingular
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for j := 0; j < 2*k; j++ {
			aug[col][j] /= pv
		}
		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < 2*k; j++ {
				aug[r][j] -= factor * aug[col][j]
			}
		}
	}

	inv := make([][]float64, k)
	for i := 0; i < k; i++ {
		inv[i] = aug[i][k:]
	}
	return inv, nil
}

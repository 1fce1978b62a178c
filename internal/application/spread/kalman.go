package spread

// Kalman tracks a slowly drifting hedge ratio with a scalar
// Kalman-filter update over the measurement model log(B) = β·log(A) + v.
// Cheaper and more responsive than re-running the batch regression on
// every tick; Q and R set how fast β is allowed to move.
type Kalman struct {
	beta float64
	p    float64 // estimate covariance
	q    float64 // process noise
	r    float64 // measurement noise
}

const (
	defaultProcessNoise     = 1e-5
	defaultMeasurementNoise = 1e-4
)

// NewKalman seeds the filter with the scanner's OLS β.
func NewKalman(initialBeta float64) *Kalman {
	return &Kalman{
		beta: initialBeta,
		p:    1.0,
		q:    defaultProcessNoise,
		r:    defaultMeasurementNoise,
	}
}

// NewKalmanWithNoise allows tuning the noise parameters.
func NewKalmanWithNoise(initialBeta, processNoise, measurementNoise float64) *Kalman {
	k := NewKalman(initialBeta)
	if processNoise > 0 {
		k.q = processNoise
	}
	if measurementNoise > 0 {
		k.r = measurementNoise
	}
	return k
}

// Update folds one (logA, logB) observation into the estimate and
// returns the new β:
//
//	β_t = β_{t-1} + K_t·(logB − β_{t-1}·logA)
//
// with the gain K_t derived from the current estimation uncertainty.
func (k *Kalman) Update(logA, logB float64) float64 {
	pPred := k.p + k.q

	innovation := logB - k.beta*logA
	innovationVar := pPred*logA*logA + k.r
	if innovationVar < 1e-10 {
		return k.beta
	}

	gain := pPred * logA / innovationVar
	k.beta += gain * innovation
	k.p = (1 - gain*logA) * pPred

	return k.beta
}

// Beta returns the current estimate without updating.
func (k *Kalman) Beta() float64 { return k.beta }

package stats

import "math"

// RollingWindow is a fixed-capacity ring buffer over recent spread
// values with O(n) mean/std on demand. The window is fixed-size rather
// than expanding: markets shift regimes, and an all-history window
// dilutes recent volatility — a fixed window re-centers within roughly
// capacity samples.
//
// Not safe for concurrent use; each spread engine owns exactly one.
type RollingWindow struct {
	buf   []float64
	idx   int
	count int
}

// NewRollingWindow creates a window holding up to capacity samples.
func NewRollingWindow(capacity int) *RollingWindow {
	if capacity < 2 {
		capacity = 2
	}
	return &RollingWindow{buf: make([]float64, capacity)}
}

// Add appends a sample, evicting the oldest once full.
func (w *RollingWindow) Add(v float64) {
	w.buf[w.idx] = v
	w.idx = (w.idx + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of samples currently held.
func (w *RollingWindow) Len() int { return w.count }

// Cap returns the window capacity.
func (w *RollingWindow) Cap() int { return len(w.buf) }

// Full reports whether the window has wrapped at least once.
func (w *RollingWindow) Full() bool { return w.count == len(w.buf) }

// Last returns the most recently added sample, or 0 when empty.
func (w *RollingWindow) Last() float64 {
	if w.count == 0 {
		return 0
	}
	return w.buf[(w.idx-1+len(w.buf))%len(w.buf)]
}

// Mean returns the mean over the held samples.
func (w *RollingWindow) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.buf[i]
	}
	return sum / float64(w.count)
}

// StdDev returns the population standard deviation over the held samples.
func (w *RollingWindow) StdDev() float64 {
	if w.count == 0 {
		return 0
	}
	mean := w.Mean()
	var ss float64
	for i := 0; i < w.count; i++ {
		d := w.buf[i] - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(w.count))
}

// ZScore returns (Last − Mean)/StdDev along with ok=false when fewer
// than minSamples are held or the deviation is numerically zero.
func (w *RollingWindow) ZScore(minSamples int) (z float64, ok bool) {
	if w.count < minSamples {
		return 0, false
	}
	std := w.StdDev()
	if std < 1e-8 {
		return 0, false
	}
	return (w.Last() - w.Mean()) / std, true
}

// Reset empties the window.
func (w *RollingWindow) Reset() {
	w.idx = 0
	w.count = 0
}

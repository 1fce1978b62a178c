package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollingWindow_EvictsOldest(t *testing.T) {
	w := NewRollingWindow(3)
	for _, v := range []float64{1, 2, 3, 4} {
		w.Add(v)
	}

	assert.Equal(t, 3, w.Len())
	assert.True(t, w.Full())
	assert.Equal(t, 4.0, w.Last())
	assert.InDelta(t, 3.0, w.Mean(), 1e-9) // holds {2,3,4}
}

func TestRollingWindow_ZScore(t *testing.T) {
	w := NewRollingWindow(10)
	for _, v := range []float64{10, 12, 8, 10, 12, 8, 10, 12, 8, 16} {
		w.Add(v)
	}

	z, ok := w.ZScore(5)
	require.True(t, ok)
	assert.Greater(t, z, 1.5, "16 is well above the window mean")
}

func TestRollingWindow_ZScoreWarmup(t *testing.T) {
	w := NewRollingWindow(50)
	w.Add(1)
	w.Add(2)

	_, ok := w.ZScore(20)
	assert.False(t, ok, "no z-score before minSamples")
}

func TestRollingWindow_ZScoreFlatSpread(t *testing.T) {
	w := NewRollingWindow(10)
	for i := 0; i < 10; i++ {
		w.Add(5.0)
	}

	_, ok := w.ZScore(5)
	assert.False(t, ok, "zero deviation must not divide")
}

func TestRollingWindow_Reset(t *testing.T) {
	w := NewRollingWindow(4)
	w.Add(1)
	w.Add(2)
	w.Reset()

	assert.Equal(t, 0, w.Len())
	_, ok := w.ZScore(1)
	assert.False(t, ok)
}

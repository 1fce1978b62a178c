package notify

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_NotifyScanRendersTable(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	err := c.NotifyScan(context.Background(), []domain.PairCandidate{{
		PairID:        "AAAUSDT-BBBUSDT",
		HedgeRatio:    0.8542,
		Correlation:   0.91,
		ADFPValue:     0.012,
		CointPValue:   0.004,
		HalfLifeHours: 6.5,
	}})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "AAAUSDT-BBBUSDT")
	assert.Contains(t, out, "0.8542")
	assert.Contains(t, out, "6.5h")
}

func TestConsole_NotifyScanEmpty(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	require.NoError(t, c.NotifyScan(context.Background(), nil))
	assert.Contains(t, buf.String(), "no cointegrated pairs")
}

func TestConsole_AlertIncludesExposure(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	err := c.Alert(context.Background(), domain.Alert{
		PositionID: "pos-1",
		PairID:     "AAAUSDT-BBBUSDT",
		Symbol:     "AAAUSDT",
		Quantity:   0.75,
		Reason:     "leg B unwind failed, retries exhausted",
		At:         time.Now(),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "MANUAL INTERVENTION REQUIRED")
	assert.Contains(t, out, "AAAUSDT")
	assert.Contains(t, out, "0.75")
}

func TestHalfLifeLabel(t *testing.T) {
	assert.Equal(t, "6.5h", halfLifeLabel(6.5))
	assert.Equal(t, "3.0d", halfLifeLabel(72))
}

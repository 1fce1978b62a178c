package binance

import (
	"testing"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepPrecision(t *testing.T) {
	assert.Equal(t, 3, stepPrecision("0.00100000"))
	assert.Equal(t, 0, stepPrecision("1.00000000"))
	assert.Equal(t, 8, stepPrecision("0.00000001"))
	assert.Equal(t, 0, stepPrecision("1"))
	assert.Equal(t, 2, stepPrecision("0.01"))
}

func TestParseKline(t *testing.T) {
	row := []any{
		1.7e12, "100.0", "101.0", "99.0", "100.5", "1234.5", 1.70000036e12,
	}
	point, err := parseKline(row)
	require.NoError(t, err)
	assert.InDelta(t, 100.5, point.Price, 1e-9)
	assert.Equal(t, int64(1.7e12), point.Timestamp.UnixMilli())
}

func TestParseKline_Malformed(t *testing.T) {
	_, err := parseKline([]any{1.0, "2.0"})
	assert.Error(t, err)

	_, err = parseKline([]any{1.7e12, "o", "h", "l", "not-a-number", "v", 2.0})
	assert.Error(t, err)
}

func TestMapOrder(t *testing.T) {
	req := domain.OrderRequest{
		ClientID: "abc",
		Symbol:   "ETHUSDT",
		Side:     domain.SideBuy,
		Quantity: 2.0,
	}
	resp := orderResponse{
		OrderID:       42,
		ClientOrderID: "abc",
		Status:        "FILLED",
		ExecutedQty:   "2.0",
		CummQuoteQty:  "5000.0",
		Fills: []struct {
			Commission string `json:"commission"`
		}{{Commission: "0.5"}, {Commission: "0.5"}},
	}

	order, err := mapOrder(req, resp)
	require.NoError(t, err)
	assert.Equal(t, "42", order.VenueOrderID)
	assert.InDelta(t, 2.0, order.FilledQty, 1e-9)
	assert.InDelta(t, 2500.0, order.AvgPrice, 1e-9)
	assert.InDelta(t, 1.0, order.FeePaid, 1e-9)
	assert.Equal(t, domain.OrderFilled, order.Status)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, domain.OrderFilled, mapStatus("FILLED", 2, 2))
	assert.Equal(t, domain.OrderPartiallyFilled, mapStatus("PARTIALLY_FILLED", 1, 2))
	assert.Equal(t, domain.OrderPartiallyFilled, mapStatus("EXPIRED", 1.2, 2))
	assert.Equal(t, domain.OrderRejected, mapStatus("EXPIRED", 0, 2))
	assert.Equal(t, domain.OrderRejected, mapStatus("REJECTED", 0, 2))
	assert.Equal(t, domain.OrderSubmitted, mapStatus("NEW", 0, 2))
}

package ports

import (
	"context"

	"github.com/alejandrodnm/statarb/internal/domain"
)

// Exchange is the execution venue. Correctness of the engine's ghost
// order handling and precision rounding depends on these exact
// guarantees: submissions are idempotent via the caller-supplied client
// id, and any order the venue accepted is findable by that id.
type Exchange interface {
	// SubmitMarketOrder places a market order and reports a typed
	// outcome. A transient failure means the acknowledgment was lost and
	// the order may or may not exist on the venue; the caller decides
	// whether to verify, never this method.
	SubmitMarketOrder(ctx context.Context, req domain.OrderRequest) domain.SubmitResult

	// QueryOrder looks an order up by its client-assigned id. found is
	// false when the venue has no record of it.
	QueryOrder(ctx context.Context, symbol, clientID string) (order domain.Order, found bool, err error)

	// InstrumentMeta returns precision and minimum-notional metadata.
	InstrumentMeta(ctx context.Context, symbol string) (domain.InstrumentMeta, error)

	// LastPrice returns the most recent trade price for sizing.
	LastPrice(ctx context.Context, symbol string) (float64, error)

	// AccountEquity returns the free quote-currency balance.
	AccountEquity(ctx context.Context) (float64, error)
}

package ports

import (
	"context"

	"github.com/alejandrodnm/statarb/internal/domain"
)

// SignalHandler consumes trading signals from the spread engines. The
// execution engine is the production implementation; tests register
// fakes. Execute returns true only when the signal resulted in a
// confirmed position transition.
type SignalHandler interface {
	Execute(ctx context.Context, signal domain.TradingSignal) bool
}

package ports

import (
	"context"

	"github.com/alejandrodnm/statarb/internal/domain"
)

// PriceFeed streams normalized price samples for a set of instruments.
// The core depends only on receiving (symbol, price, timestamp) tuples
// in per-symbol arrival order; the transport behind the subscription is
// the adapter's concern.
type PriceFeed interface {
	// Subscribe starts streaming ticks for the given symbols. The channel
	// is closed when ctx is cancelled or the feed shuts down.
	Subscribe(ctx context.Context, symbols []string) (<-chan domain.Tick, error)
}

// HistoryProvider loads the historical price series the scanner needs.
type HistoryProvider interface {
	// FetchSeries returns up to limit most-recent samples for each symbol.
	FetchSeries(ctx context.Context, symbols []string, limit int) (map[string]domain.PriceSeries, error)
}

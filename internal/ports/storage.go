package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
)

// CandidateStore persists scanner output.
type CandidateStore interface {
	// SaveScanRun records one scan run and its surviving candidates.
	SaveScanRun(ctx context.Context, startedAt time.Time, universe int, candidates []domain.PairCandidate) error

	// LatestCandidates returns the candidates from the most recent run,
	// ranked as the scanner emitted them.
	LatestCandidates(ctx context.Context) ([]domain.PairCandidate, error)

	// Close closes the underlying database cleanly.
	Close() error
}

// TradeJournal persists execution state: every order, position
// transition, and alert. The journal is an audit trail — the venue stays
// the authoritative source of order truth.
type TradeJournal interface {
	SaveOrder(ctx context.Context, pairID string, order domain.Order) error
	UpdateOrderStatus(ctx context.Context, clientID string, status domain.OrderStatus, filledQty, avgPrice float64) error

	SavePosition(ctx context.Context, pos domain.Position) error
	UpdatePosition(ctx context.Context, pos domain.Position) error
	OpenPositions(ctx context.Context) ([]domain.Position, error)

	SaveAlert(ctx context.Context, alert domain.Alert) error
}

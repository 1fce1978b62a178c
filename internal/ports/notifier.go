package ports

import (
	"context"

	"github.com/alejandrodnm/statarb/internal/domain"
)

// Notifier presents scan results to the user.
type Notifier interface {
	// NotifyScan shows the ranked candidates from a completed scan.
	NotifyScan(ctx context.Context, candidates []domain.PairCandidate) error
}

// Alerter is the operator escalation channel. It is invoked only on an
// ALERT transition — a position whose emergency rollback exhausted its
// retry budget and now needs manual intervention.
type Alerter interface {
	Alert(ctx context.Context, alert domain.Alert) error
}

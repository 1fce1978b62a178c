// Package notify renders scanner results and operator alerts to the
// console.
package notify

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implements ports.Notifier and ports.Alerter, writing to stdout.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// NotifyScan prints the ranked candidate table from a completed scan.
func (c *Console) NotifyScan(_ context.Context, candidates []domain.PairCandidate) error {
	now := time.Now().Format("15:04:05")
	if len(candidates) == 0 {
		fmt.Fprintf(c.out, "[%s] no cointegrated pairs found\n", now)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] %d cointegrated pairs (ranked by cointegration strength)\n",
		now, len(candidates))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Pair", "Beta", "Corr", "ADF p", "Coint p", "Half-life")

	for i, cand := range candidates {
		table.Append(
			fmt.Sprintf("%d", i+1),
			cand.PairID,
			fmt.Sprintf("%.4f", cand.HedgeRatio),
			fmt.Sprintf("%.3f", cand.Correlation),
			fmt.Sprintf("%.4f", cand.ADFPValue),
			fmt.Sprintf("%.4f", cand.CointPValue),
			halfLifeLabel(cand.HalfLifeHours),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Beta = hedge ratio from OLS | Half-life = expected reversion speed")
	fmt.Fprintln(c.out, "  Lower p-values = stronger evidence the spread is stationary")
	return nil
}

// Alert prints an operator escalation. This fires only when automated
// remediation has already given up on a position.
func (c *Console) Alert(_ context.Context, a domain.Alert) error {
	fmt.Fprintf(c.out, "\n!!! ALERT [%s] pair %s — MANUAL INTERVENTION REQUIRED\n",
		a.At.Format("15:04:05"), a.PairID)
	fmt.Fprintf(c.out, "    position: %s\n", a.PositionID)
	fmt.Fprintf(c.out, "    naked exposure: %s qty %.8f\n", a.Symbol, a.Quantity)
	fmt.Fprintf(c.out, "    reason: %s\n\n", a.Reason)
	return nil
}

func halfLifeLabel(hours float64) string {
	if math.IsInf(hours, 1) {
		return "INF"
	}
	if hours < 48 {
		return fmt.Sprintf("%.1fh", hours)
	}
	return fmt.Sprintf("%.1fd", hours/24)
}

// Package storage persists scanner output and the execution audit trail
// in SQLite. The journal is write-mostly: the venue remains the
// authoritative source of order truth, this is the local record for
// reconciliation and post-mortems.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS scan_runs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    universe   INTEGER  NOT NULL,
    candidates INTEGER  NOT NULL
);

CREATE TABLE IF NOT EXISTS candidates (
    run_id          INTEGER NOT NULL REFERENCES scan_runs(id),
    rank            INTEGER NOT NULL,
    pair_id         TEXT    NOT NULL,
    leg_a           TEXT    NOT NULL,
    leg_b           TEXT    NOT NULL,
    hedge_ratio     REAL    NOT NULL,
    correlation     REAL    NOT NULL,
    adf_statistic   REAL    NOT NULL,
    adf_p_value     REAL    NOT NULL,
    coint_statistic REAL    NOT NULL,
    coint_p_value   REAL    NOT NULL,
    half_life_hours REAL    NOT NULL,
    scanned_at      DATETIME NOT NULL,
    PRIMARY KEY (run_id, rank)
);

CREATE TABLE IF NOT EXISTS orders (
    client_id      TEXT PRIMARY KEY,
    venue_order_id TEXT,
    pair_id        TEXT NOT NULL,
    symbol         TEXT NOT NULL,
    side           TEXT NOT NULL,
    quantity       REAL NOT NULL,
    filled_qty     REAL NOT NULL,
    avg_price      REAL NOT NULL,
    fee_paid       REAL NOT NULL,
    status         TEXT NOT NULL,
    submitted_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id            TEXT PRIMARY KEY,
    pair_id       TEXT NOT NULL,
    direction     TEXT NOT NULL,
    status        TEXT NOT NULL,
    leg_a_symbol  TEXT NOT NULL,
    leg_a_qty     REAL NOT NULL,
    leg_a_entry   REAL NOT NULL,
    leg_a_exit    REAL NOT NULL,
    leg_b_symbol  TEXT NOT NULL,
    leg_b_qty     REAL NOT NULL,
    leg_b_entry   REAL NOT NULL,
    leg_b_exit    REAL NOT NULL,
    open_time     DATETIME,
    close_time    DATETIME,
    entry_z       REAL NOT NULL,
    realized_pnl  REAL NOT NULL DEFAULT 0,
    fees_paid     REAL NOT NULL DEFAULT 0,
    alert_reason  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alerts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    position_id TEXT NOT NULL,
    pair_id     TEXT NOT NULL,
    symbol      TEXT NOT NULL,
    quantity    REAL NOT NULL,
    reason      TEXT NOT NULL,
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_at       ON scan_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_pair   ON orders(pair_id);
CREATE INDEX IF NOT EXISTS idx_pos_pair      ON positions(pair_id);
CREATE INDEX IF NOT EXISTS idx_pos_status    ON positions(status);
CREATE INDEX IF NOT EXISTS idx_alerts_pos    ON alerts(position_id);
`

// SQLiteStore implements ports.CandidateStore and ports.TradeJournal
// using SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveScanRun records one scan run with its ranked candidates in a
// single transaction.
func (s *SQLiteStore) SaveScanRun(ctx context.Context, startedAt time.Time, universe int, candidates []domain.PairCandidate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveScanRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scan_runs (started_at, universe, candidates) VALUES (?, ?, ?)`,
		startedAt.UTC(), universe, len(candidates),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveScanRun: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage.SaveScanRun: run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates
			(run_id, rank, pair_id, leg_a, leg_b, hedge_ratio, correlation,
			 adf_statistic, adf_p_value, coint_statistic, coint_p_value,
			 half_life_hours, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveScanRun: prepare: %w", err)
	}
	defer stmt.Close()

	for rank, c := range candidates {
		if _, err := stmt.ExecContext(ctx,
			runID, rank+1, c.PairID, c.LegA, c.LegB, c.HedgeRatio, c.Correlation,
			c.ADFStatistic, c.ADFPValue, c.CointStatistic, c.CointPValue,
			c.HalfLifeHours, c.ScannedAt.UTC(),
		); err != nil {
			return fmt.Errorf("storage.SaveScanRun: insert candidate %s: %w", c.PairID, err)
		}
	}
	return tx.Commit()
}

// LatestCandidates returns the candidates of the most recent run in
// scanner rank order. An empty slice means no runs yet.
func (s *SQLiteStore) LatestCandidates(ctx context.Context) ([]domain.PairCandidate, error) {
	var runID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT 1`,
	).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LatestCandidates: latest run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pair_id, leg_a, leg_b, hedge_ratio, correlation,
		       adf_statistic, adf_p_value, coint_statistic, coint_p_value,
		       half_life_hours, scanned_at
		FROM candidates WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.LatestCandidates: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PairCandidate
	for rows.Next() {
		var c domain.PairCandidate
		if err := rows.Scan(
			&c.PairID, &c.LegA, &c.LegB, &c.HedgeRatio, &c.Correlation,
			&c.ADFStatistic, &c.ADFPValue, &c.CointStatistic, &c.CointPValue,
			&c.HalfLifeHours, &c.ScannedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.LatestCandidates: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveOrder records a submitted order.
func (s *SQLiteStore) SaveOrder(ctx context.Context, pairID string, o domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
			(client_id, venue_order_id, pair_id, symbol, side, quantity,
			 filled_qty, avg_price, fee_paid, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			venue_order_id = excluded.venue_order_id,
			filled_qty     = excluded.filled_qty,
			avg_price      = excluded.avg_price,
			fee_paid       = excluded.fee_paid,
			status         = excluded.status`,
		o.ClientID, o.VenueOrderID, pairID, o.Symbol, string(o.Side), o.Quantity,
		o.FilledQty, o.AvgPrice, o.FeePaid, string(o.Status), o.SubmittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder: %s: %w", o.ClientID, err)
	}
	return nil
}

// UpdateOrderStatus updates an order after a later status resolution
// (ghost verification, fill reconciliation).
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, clientID string, status domain.OrderStatus, filledQty, avgPrice float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, filled_qty = ?, avg_price = ? WHERE client_id = ?`,
		string(status), filledQty, avgPrice, clientID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateOrderStatus: %s: %w", clientID, err)
	}
	return nil
}

// SavePosition inserts a new position row.
func (s *SQLiteStore) SavePosition(ctx context.Context, p domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(id, pair_id, direction, status,
			 leg_a_symbol, leg_a_qty, leg_a_entry, leg_a_exit,
			 leg_b_symbol, leg_b_qty, leg_b_entry, leg_b_exit,
			 open_time, close_time, entry_z, realized_pnl, fees_paid, alert_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		p.ID, p.PairID, string(p.Direction), string(p.Status),
		p.LegA.Symbol, p.LegA.Quantity, p.LegA.EntryPrice, p.LegA.ExitPrice,
		p.LegB.Symbol, p.LegB.Quantity, p.LegB.EntryPrice, p.LegB.ExitPrice,
		nullTime(p.OpenTime), nullTime(p.CloseTime),
		p.EntryZScore, p.RealizedPnL, p.FeesPaid, p.AlertReason,
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePosition rewrites the mutable fields of an existing position.
func (s *SQLiteStore) UpdatePosition(ctx context.Context, p domain.Position) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions SET
			status = ?,
			leg_a_qty = ?, leg_a_entry = ?, leg_a_exit = ?,
			leg_b_qty = ?, leg_b_entry = ?, leg_b_exit = ?,
			open_time = ?, close_time = ?,
			realized_pnl = ?, fees_paid = ?, alert_reason = ?
		WHERE id = ?`,
		string(p.Status),
		p.LegA.Quantity, p.LegA.EntryPrice, p.LegA.ExitPrice,
		p.LegB.Quantity, p.LegB.EntryPrice, p.LegB.ExitPrice,
		nullTime(p.OpenTime), nullTime(p.CloseTime),
		p.RealizedPnL, p.FeesPaid, p.AlertReason,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdatePosition: %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// First journal write can race the insert on an entry abort.
		return s.SavePosition(ctx, p)
	}
	return nil
}

// OpenPositions returns positions that may still carry exposure, ALERT
// included — those need operator review before the pair trades again.
// OPENING is in the set too: a crash between the leg A fill and the leg
// B submission leaves an OPENING row whose leg A is live on the venue.
func (s *SQLiteStore) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pair_id, direction, status,
		       leg_a_symbol, leg_a_qty, leg_a_entry, leg_a_exit,
		       leg_b_symbol, leg_b_qty, leg_b_entry, leg_b_exit,
		       open_time, close_time, entry_z, realized_pnl, fees_paid, alert_reason
		FROM positions
		WHERE status IN (?, ?, ?, ?)
		ORDER BY open_time`,
		string(domain.PositionOpening), string(domain.PositionOpen),
		string(domain.PositionClosing), string(domain.PositionAlert),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var (
			p                   domain.Position
			direction, status   string
			openTime, closeTime sql.NullTime
		)
		if err := rows.Scan(
			&p.ID, &p.PairID, &direction, &status,
			&p.LegA.Symbol, &p.LegA.Quantity, &p.LegA.EntryPrice, &p.LegA.ExitPrice,
			&p.LegB.Symbol, &p.LegB.Quantity, &p.LegB.EntryPrice, &p.LegB.ExitPrice,
			&openTime, &closeTime, &p.EntryZScore, &p.RealizedPnL, &p.FeesPaid, &p.AlertReason,
		); err != nil {
			return nil, fmt.Errorf("storage.OpenPositions: scan: %w", err)
		}
		p.Direction = domain.SignalDirection(direction)
		p.Status = domain.PositionStatus(status)
		if openTime.Valid {
			p.OpenTime = openTime.Time
		}
		if closeTime.Valid {
			p.CloseTime = closeTime.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveAlert appends one operator escalation record.
func (s *SQLiteStore) SaveAlert(ctx context.Context, a domain.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (position_id, pair_id, symbol, quantity, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.PositionID, a.PairID, a.Symbol, a.Quantity, a.Reason, a.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveAlert: position %s: %w", a.PositionID, err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

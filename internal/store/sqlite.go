package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"marketsim/internal/competitor"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ticks (
	session_id  TEXT NOT NULL,
	tick        INTEGER NOT NULL,
	market_idx  REAL NOT NULL,
	breaker     INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, tick)
);

CREATE TABLE IF NOT EXISTS prices (
	session_id     TEXT NOT NULL,
	tick           INTEGER NOT NULL,
	company_id     TEXT NOT NULL,
	price          REAL NOT NULL,
	net_buy_volume REAL NOT NULL,
	ownership      REAL NOT NULL,
	PRIMARY KEY (session_id, tick, company_id)
);

CREATE TABLE IF NOT EXISTS actions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	tick          INTEGER NOT NULL,
	competitor_id TEXT NOT NULL,
	company_id    TEXT NOT NULL,
	action        TEXT NOT NULL,
	quantity      INTEGER NOT NULL,
	price         REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_session_tick ON actions(session_id, tick);

CREATE TABLE IF NOT EXISTS settlements (
	session_id   TEXT NOT NULL,
	year         INTEGER NOT NULL,
	month        INTEGER NOT NULL,
	tier         TEXT NOT NULL,
	start_assets REAL NOT NULL,
	end_assets   REAL NOT NULL,
	return_rate  REAL NOT NULL,
	tax_paid     REAL NOT NULL,
	PRIMARY KEY (session_id, year, month)
);
`

type SQLite struct {
	conn *sqlx.DB
	mu   sync.Mutex
}

// NewSQLite opens or creates a WAL-mode journal at path.
func NewSQLite(path string) (*SQLite, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

func (s *SQLite) RecordTick(ctx context.Context, rec TickRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO ticks (session_id, tick, market_idx, breaker, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Tick, rec.Index, rec.Breaker, rec.RecordedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	if len(rec.Prices) > 0 {
		rows := make([]PricePoint, len(rec.Prices))
		for i, pt := range rec.Prices {
			pt.SessionID = rec.SessionID
			pt.Tick = rec.Tick
			rows[i] = pt
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT OR IGNORE INTO prices (session_id, tick, company_id, price, net_buy_volume, ownership)
			VALUES (:session_id, :tick, :company_id, :price, :net_buy_volume, :ownership)
		`, rows); err != nil {
			return fmt.Errorf("insert prices: %w", err)
		}
	}
	return tx.Commit()
}

type actionRow struct {
	SessionID    string  `db:"session_id"`
	Tick         int     `db:"tick"`
	CompetitorID string  `db:"competitor_id"`
	CompanyID    string  `db:"company_id"`
	Action       string  `db:"action"`
	Quantity     int64   `db:"quantity"`
	Price        float64 `db:"price"`
}

func (s *SQLite) RecordActions(ctx context.Context, sessionID string, actions []competitor.TradeAction) error {
	if len(actions) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]actionRow, len(actions))
	for i, a := range actions {
		rows[i] = actionRow{
			SessionID:    sessionID,
			Tick:         a.Tick,
			CompetitorID: a.CompetitorID,
			CompanyID:    a.CompanyID,
			Action:       string(a.Action),
			Quantity:     a.Quantity,
			Price:        a.Price,
		}
	}
	_, err := s.conn.NamedExecContext(ctx, `
		INSERT INTO actions (session_id, tick, competitor_id, company_id, action, quantity, price)
		VALUES (:session_id, :tick, :competitor_id, :company_id, :action, :quantity, :price)
	`, rows)
	return err
}

func (s *SQLite) RecordSettlement(ctx context.Context, rec SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO settlements (session_id, year, month, tier, start_assets, end_assets, return_rate, tax_paid)
		VALUES (:session_id, :year, :month, :tier, :start_assets, :end_assets, :return_rate, :tax_paid)
	`, rec)
	return err
}

func (s *SQLite) PriceHistory(ctx context.Context, sessionID, companyID string, limit int) ([]PricePoint, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []PricePoint
	err := s.conn.SelectContext(ctx, &out, `
		SELECT session_id, tick, company_id, price, net_buy_volume, ownership
		FROM prices
		WHERE session_id = ? AND company_id = ?
		ORDER BY tick DESC
		LIMIT ?
	`, sessionID, companyID, limit)
	if err != nil {
		return nil, err
	}
	return reverse(out), nil
}

// Settlements lists a session's monthly records, oldest first.
func (s *SQLite) Settlements(ctx context.Context, sessionID string) ([]SettlementRecord, error) {
	var out []SettlementRecord
	err := s.conn.SelectContext(ctx, &out, `
		SELECT session_id, year, month, tier, start_assets, end_assets, return_rate, tax_paid
		FROM settlements
		WHERE session_id = ?
		ORDER BY year, month
	`, sessionID)
	return out, err
}

func (s *SQLite) Prune(ctx context.Context, sessionID string, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var newest int
	if err := tx.GetContext(ctx, &newest, `SELECT COALESCE(MAX(tick), 0) FROM ticks WHERE session_id = ?`, sessionID); err != nil {
		return 0, err
	}
	cutoff := newest - keep
	var removed int64
	for _, table := range []string{"prices", "actions", "ticks"} {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ? AND tick < ?`, sessionID, cutoff)
		if err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, tx.Commit()
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketsim/internal/competitor"
	"marketsim/internal/db"
)

var postgresSchema = []string{
	`CREATE SCHEMA IF NOT EXISTS marketsim`,
	`CREATE TABLE IF NOT EXISTS marketsim.ticks (
		session_id  TEXT NOT NULL,
		tick        INTEGER NOT NULL,
		market_idx  DOUBLE PRECISION NOT NULL,
		breaker     INTEGER NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, tick)
	)`,
	`CREATE TABLE IF NOT EXISTS marketsim.prices (
		session_id     TEXT NOT NULL,
		tick           INTEGER NOT NULL,
		company_id     TEXT NOT NULL,
		price          DOUBLE PRECISION NOT NULL,
		net_buy_volume DOUBLE PRECISION NOT NULL,
		ownership      DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (session_id, tick, company_id)
	)`,
	`CREATE TABLE IF NOT EXISTS marketsim.actions (
		id            BIGSERIAL PRIMARY KEY,
		session_id    TEXT NOT NULL,
		tick          INTEGER NOT NULL,
		competitor_id TEXT NOT NULL,
		company_id    TEXT NOT NULL,
		action        TEXT NOT NULL,
		quantity      BIGINT NOT NULL,
		price         DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS actions_session_tick_idx ON marketsim.actions (session_id, tick)`,
	`CREATE TABLE IF NOT EXISTS marketsim.settlements (
		session_id   TEXT NOT NULL,
		year         INTEGER NOT NULL,
		month        INTEGER NOT NULL,
		tier         TEXT NOT NULL,
		start_assets DOUBLE PRECISION NOT NULL,
		end_assets   DOUBLE PRECISION NOT NULL,
		return_rate  DOUBLE PRECISION NOT NULL,
		tax_paid     DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (session_id, year, month)
	)`,
}

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres migrates the journal schema and takes ownership of pool.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if err := db.Migrate(ctx, pool, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) RecordTick(ctx context.Context, rec TickRecord) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO marketsim.ticks (session_id, tick, market_idx, breaker, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, tick) DO NOTHING
	`, rec.SessionID, rec.Tick, rec.Index, rec.Breaker, rec.RecordedAt)
	for _, pt := range rec.Prices {
		batch.Queue(`
			INSERT INTO marketsim.prices (session_id, tick, company_id, price, net_buy_volume, ownership)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id, tick, company_id) DO NOTHING
		`, rec.SessionID, rec.Tick, pt.CompanyID, pt.Price, pt.NetBuyVolume, pt.Ownership)
	}
	return p.send(ctx, batch)
}

func (p *Postgres) RecordActions(ctx context.Context, sessionID string, actions []competitor.TradeAction) error {
	if len(actions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range actions {
		batch.Queue(`
			INSERT INTO marketsim.actions (session_id, tick, competitor_id, company_id, action, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, sessionID, a.Tick, a.CompetitorID, a.CompanyID, string(a.Action), a.Quantity, a.Price)
	}
	return p.send(ctx, batch)
}

func (p *Postgres) RecordSettlement(ctx context.Context, rec SettlementRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO marketsim.settlements (session_id, year, month, tier, start_assets, end_assets, return_rate, tax_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, year, month) DO UPDATE
		SET tier = EXCLUDED.tier,
			start_assets = EXCLUDED.start_assets,
			end_assets = EXCLUDED.end_assets,
			return_rate = EXCLUDED.return_rate,
			tax_paid = EXCLUDED.tax_paid
	`, rec.SessionID, rec.Year, rec.Month, rec.Tier, rec.StartAssets, rec.EndAssets, rec.ReturnRate, rec.TaxPaid)
	return err
}

func (p *Postgres) PriceHistory(ctx context.Context, sessionID, companyID string, limit int) ([]PricePoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT session_id, tick, company_id, price, net_buy_volume, ownership
		FROM marketsim.prices
		WHERE session_id = $1 AND company_id = $2
		ORDER BY tick DESC
		LIMIT $3
	`, sessionID, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var pt PricePoint
		if err := rows.Scan(&pt.SessionID, &pt.Tick, &pt.CompanyID, &pt.Price, &pt.NetBuyVolume, &pt.Ownership); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return reverse(out), rows.Err()
}

func (p *Postgres) Prune(ctx context.Context, sessionID string, keep int) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var newest int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(tick), 0) FROM marketsim.ticks WHERE session_id = $1`, sessionID).Scan(&newest); err != nil {
		return 0, err
	}
	cutoff := newest - keep
	var removed int64
	for _, table := range []string{"marketsim.prices", "marketsim.actions", "marketsim.ticks"} {
		tag, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE session_id = $1 AND tick < $2`, sessionID, cutoff)
		if err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
		removed += tag.RowsAffected()
	}
	return removed, tx.Commit(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) send(ctx context.Context, batch *pgx.Batch) error {
	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return nil
}

func reverse(pts []PricePoint) []PricePoint {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
	return pts
}

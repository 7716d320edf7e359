package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"marketsim/internal/competitor"
	"marketsim/internal/db"
)

var ErrUnsupportedDriver = errors.New("unsupported journal driver")

type PricePoint struct {
	SessionID    string  `db:"session_id" json:"session_id"`
	Tick         int     `db:"tick" json:"tick"`
	CompanyID    string  `db:"company_id" json:"company_id"`
	Price        float64 `db:"price" json:"price"`
	NetBuyVolume float64 `db:"net_buy_volume" json:"net_buy_volume"`
	Ownership    float64 `db:"ownership" json:"ownership"`
}

type TickRecord struct {
	SessionID  string
	Tick       int
	Index      float64
	Breaker    int
	RecordedAt time.Time
	Prices     []PricePoint
}

type SettlementRecord struct {
	SessionID   string  `db:"session_id" json:"session_id"`
	Year        int     `db:"year" json:"year"`
	Month       int     `db:"month" json:"month"`
	Tier        string  `db:"tier" json:"tier"`
	StartAssets float64 `db:"start_assets" json:"start_assets"`
	EndAssets   float64 `db:"end_assets" json:"end_assets"`
	ReturnRate  float64 `db:"return_rate" json:"return_rate"`
	TaxPaid     float64 `db:"tax_paid" json:"tax_paid"`
}

// Recorder journals a running session. Implementations need not be safe for
// concurrent use; sim.Runner serializes its calls.
type Recorder interface {
	RecordTick(ctx context.Context, rec TickRecord) error
	RecordActions(ctx context.Context, sessionID string, actions []competitor.TradeAction) error
	RecordSettlement(ctx context.Context, rec SettlementRecord) error
	PriceHistory(ctx context.Context, sessionID, companyID string, limit int) ([]PricePoint, error)
	// Prune drops ticks older than keep ticks behind the newest and reports rows removed.
	Prune(ctx context.Context, sessionID string, keep int) (int64, error)
	Close() error
}

type Config struct {
	DatabaseURL string
	SQLitePath  string
	Pool        db.PoolOptions
}

// Open picks Postgres when a database URL is set, then SQLite, then Noop.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		if !strings.HasPrefix(cfg.DatabaseURL, "postgres://") && !strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
			return nil, ErrUnsupportedDriver
		}
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.Pool)
		if err != nil {
			return nil, err
		}
		rec, err := NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("journal opened", "driver", "postgres")
		return rec, nil
	case strings.TrimSpace(cfg.SQLitePath) != "":
		rec, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("journal opened", "driver", "sqlite", "path", cfg.SQLitePath)
		return rec, nil
	default:
		return Noop{}, nil
	}
}

type Noop struct{}

func (Noop) RecordTick(context.Context, TickRecord) error { return nil }

func (Noop) RecordActions(context.Context, string, []competitor.TradeAction) error { return nil }

func (Noop) RecordSettlement(context.Context, SettlementRecord) error { return nil }

func (Noop) PriceHistory(context.Context, string, string, int) ([]PricePoint, error) {
	return nil, nil
}

func (Noop) Prune(context.Context, string, int) (int64, error) { return 0, nil }

func (Noop) Close() error { return nil }

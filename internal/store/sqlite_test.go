package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"marketsim/internal/competitor"
)

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func tickRecord(tick int, price float64) TickRecord {
	return TickRecord{
		SessionID:  "s1",
		Tick:       tick,
		Index:      100,
		RecordedAt: time.Unix(1700000000, 0),
		Prices: []PricePoint{
			{CompanyID: "nimbus", Price: price, NetBuyVolume: 1e6, Ownership: 0.3},
			{CompanyID: "vectra", Price: price * 2},
		},
	}
}

func TestSQLiteTicksAndHistory(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	for i := 0; i < 5; i++ {
		if err := s.RecordTick(ctx, tickRecord(i, 50000+float64(i)*100)); err != nil {
			t.Fatalf("record tick %d: %v", i, err)
		}
	}
	// duplicate ticks are ignored
	if err := s.RecordTick(ctx, tickRecord(4, 1)); err != nil {
		t.Fatalf("record duplicate: %v", err)
	}

	hist, err := s.PriceHistory(ctx, "s1", "nimbus", 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 points, got %d", len(hist))
	}
	if hist[0].Tick != 2 || hist[2].Tick != 4 || hist[2].Price != 50400 {
		t.Fatalf("unexpected history %+v", hist)
	}
}

func TestSQLiteActionsAndPrune(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	for i := 0; i < 10; i++ {
		if err := s.RecordTick(ctx, tickRecord(i, 50000)); err != nil {
			t.Fatalf("record tick: %v", err)
		}
		err := s.RecordActions(ctx, "s1", []competitor.TradeAction{
			{CompetitorID: "competitor-0", CompanyID: "nimbus", Action: competitor.Buy, Quantity: 10, Price: 50000, Tick: i},
		})
		if err != nil {
			t.Fatalf("record actions: %v", err)
		}
	}
	if err := s.RecordActions(ctx, "s1", nil); err != nil {
		t.Fatalf("empty actions: %v", err)
	}

	removed, err := s.Prune(ctx, "s1", 4)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	// ticks 0..4 go: 5 ticks, 10 prices, 5 actions
	if removed != 20 {
		t.Fatalf("removed = %d", removed)
	}
	hist, err := s.PriceHistory(ctx, "s1", "nimbus", 100)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 5 || hist[0].Tick != 5 {
		t.Fatalf("unexpected history after prune %+v", hist)
	}
}

func TestSQLiteSettlementUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	rec := SettlementRecord{SessionID: "s1", Year: 1, Month: 1, Tier: "beginner", StartAssets: 1e7, EndAssets: 1.1e7, ReturnRate: 0.1}
	if err := s.RecordSettlement(ctx, rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	rec.Tier = "growing"
	if err := s.RecordSettlement(ctx, rec); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	out, err := s.Settlements(ctx, "s1")
	if err != nil {
		t.Fatalf("settlements: %v", err)
	}
	if len(out) != 1 || out[0].Tier != "growing" {
		t.Fatalf("unexpected settlements %+v", out)
	}
}

func TestOpenPicksDriver(t *testing.T) {
	ctx := context.Background()
	rec, err := Open(ctx, Config{}, nil)
	if err != nil {
		t.Fatalf("open noop: %v", err)
	}
	if _, ok := rec.(Noop); !ok {
		t.Fatalf("expected Noop, got %T", rec)
	}

	rec, err = Open(ctx, Config{SQLitePath: filepath.Join(t.TempDir(), "j.db")}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer rec.Close()
	if _, ok := rec.(*SQLite); !ok {
		t.Fatalf("expected *SQLite, got %T", rec)
	}

	if _, err := Open(ctx, Config{DatabaseURL: "mysql://nope"}, nil); err != ErrUnsupportedDriver {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
}

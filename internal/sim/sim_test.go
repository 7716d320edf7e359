package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketsim/internal/competitor"
	"marketsim/internal/market"
	"marketsim/internal/pressure"
	"marketsim/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, cash float64) *Session {
	t.Helper()
	s := NewSession(Options{
		Seed:         42,
		Competitors:  DefaultCompetitors,
		StartingCash: cash,
		Logger:       quietLogger(),
	})
	t.Cleanup(s.Close)
	return s
}

func TestClockAt(t *testing.T) {
	tests := []struct {
		tick int
		want Clock
	}{
		{0, Clock{Tick: 0, Year: 1, Month: 1, Day: 1, Hour: 0}},
		{9, Clock{Tick: 9, Year: 1, Month: 1, Day: 1, Hour: 9}},
		{10, Clock{Tick: 10, Year: 1, Month: 1, Day: 2, Hour: 0}},
		{market.TicksPerMonth, Clock{Tick: market.TicksPerMonth, Year: 1, Month: 2, Day: 1, Hour: 0}},
		{market.TicksPerMonth * 12, Clock{Tick: market.TicksPerMonth * 12, Year: 2, Month: 1, Day: 1, Hour: 0}},
	}
	for _, tc := range tests {
		if got := ClockAt(tc.tick); got != tc.want {
			t.Fatalf("ClockAt(%d) = %+v, want %+v", tc.tick, got, tc.want)
		}
	}
}

func TestPricerSubmitAndClose(t *testing.T) {
	p := NewPricer(rand.New(rand.NewSource(1)))
	req := market.TickRequest{
		Dt: market.DefaultDt,
		Companies: []market.CompanySnapshot{{
			ID: "a", Price: 50000, BasePrice: 50000, SessionOpenPrice: 50000, Volatility: 0.02, MarketCap: 1e12,
		}},
	}
	resp, err := p.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if price := resp.Prices["a"]; price < 35000 || price > 65000 {
		t.Fatalf("price out of band: %v", price)
	}

	p.Close()
	p.Close()
	if _, err := p.Submit(context.Background(), req); !errors.Is(err, ErrPricerClosed) {
		t.Fatalf("expected ErrPricerClosed, got %v", err)
	}
}

func TestSessionMonthOfTicks(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, DefaultStartingCash)

	var settlement *Settlement
	for i := 0; i < market.TicksPerMonth; i++ {
		opens := map[string]float64{}
		for _, c := range s.companies {
			opens[c.ID] = c.SessionOpenPrice
		}
		sum, err := s.Step(ctx)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if sum.Clock.Tick != i {
			t.Fatalf("summary tick = %d, want %d", sum.Clock.Tick, i)
		}
		for id, p := range sum.Prices {
			if p < market.MinPrice {
				t.Fatalf("tick %d: %s below floor: %v", i, id, p)
			}
			lo, hi := market.DailyLimits(opens[id])
			if p < lo-1e-9 || p > hi+1e-9 {
				t.Fatalf("tick %d: %s price %v outside [%v, %v]", i, id, p, lo, hi)
			}
		}
		if sum.Settlement != nil {
			settlement = sum.Settlement
		}
	}
	if settlement == nil {
		t.Fatalf("expected a settlement after one month")
	}
	if settlement.Year != 1 || settlement.Month != 1 {
		t.Fatalf("settlement period = %d/%d", settlement.Year, settlement.Month)
	}
	if len(settlement.Rankings) != DefaultCompetitors+1 {
		t.Fatalf("rankings = %d", len(settlement.Rankings))
	}
	if got := len(s.Pressure().History); got != 1 {
		t.Fatalf("history = %d", got)
	}
	for _, c := range s.companies {
		if len(c.PriceHistory) > DefaultHistoryLimit {
			t.Fatalf("history for %s exceeds limit: %d", c.ID, len(c.PriceHistory))
		}
		if own := c.InstitutionFlow.InstitutionalOwnership; own < 0 || own > 0.9 {
			t.Fatalf("ownership for %s = %v", c.ID, own)
		}
	}
}

func TestCompetitorsIdleUnderBreaker(t *testing.T) {
	s := newTestSession(t, DefaultStartingCash)
	s.breaker.Active = true
	s.breaker.UntilClose = true
	for i := 0; i < market.TicksPerDay-1; i++ {
		sum, err := s.Step(context.Background())
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if len(sum.Actions) != 0 {
			t.Fatalf("tick %d: competitors traded under breaker: %+v", i, sum.Actions)
		}
	}
}

func TestPlaceOrder(t *testing.T) {
	s := newTestSession(t, 60_000_000)
	if s.pressure.Tier != pressure.TierGrowing {
		t.Fatalf("tier = %s", s.pressure.Tier)
	}
	c := s.companies[0]

	res, err := s.PlaceOrder(c.ID, competitor.Buy, 10)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.Filled != 10 || res.Truncated {
		t.Fatalf("unexpected fill %+v", res)
	}
	if f := s.flow[c.ID]; f.TradeCount != 1 || f.NetNotional != 10*c.Price {
		t.Fatalf("order flow = %+v", f)
	}

	// growing tier caps a position at half of total assets
	res, err = s.PlaceOrder(c.ID, competitor.Buy, 100_000)
	if err != nil {
		t.Fatalf("large buy: %v", err)
	}
	if !res.Truncated || res.Filled >= 100_000 {
		t.Fatalf("expected truncation, got %+v", res)
	}
	held := float64(s.player.Holdings[c.ID].Shares) * c.Price
	if held > 30_000_000+c.Price {
		t.Fatalf("position value %v exceeds limit", held)
	}

	if _, err := s.PlaceOrder(c.ID, competitor.Buy, 1); !errors.Is(err, ErrPositionLimit) {
		t.Fatalf("expected ErrPositionLimit, got %v", err)
	}

	shares := s.player.Holdings[c.ID].Shares
	if _, err := s.PlaceOrder(c.ID, competitor.Sell, shares+1); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if _, err := s.PlaceOrder(c.ID, competitor.Sell, shares); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if _, ok := s.player.Holdings[c.ID]; ok {
		t.Fatalf("position should be closed")
	}
}

func TestPlaceOrderRejections(t *testing.T) {
	s := newTestSession(t, DefaultStartingCash)
	id := s.companies[0].ID

	tests := []struct {
		name   string
		id     string
		side   competitor.Side
		shares int64
		want   error
	}{
		{"unknown company", "nope", competitor.Buy, 1, market.ErrUnknownCompany},
		{"zero shares", id, competitor.Buy, 0, ErrInvalidOrder},
		{"bad side", id, competitor.PanicSell, 1, ErrInvalidOrder},
		{"no holding", id, competitor.Sell, 1, ErrInsufficientShares},
	}
	for _, tc := range tests {
		if _, err := s.PlaceOrder(tc.id, tc.side, tc.shares); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}

	// assets held in another company leave room under the limit but no cash
	s.player.Cash = 0
	s.player.Holdings[s.companies[1].ID] = competitor.Position{Shares: 1000, AvgBuyPrice: s.companies[1].Price}
	if _, err := s.PlaceOrder(id, competitor.Buy, 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	s.companies[0].VI = market.VIState{Halted: true, Remaining: 3}
	if _, err := s.PlaceOrder(id, competitor.Buy, 1); !errors.Is(err, ErrTradingHalted) {
		t.Fatalf("expected ErrTradingHalted, got %v", err)
	}
}

func TestAddEventMovesSentiment(t *testing.T) {
	s := newTestSession(t, DefaultStartingCash)
	ev := s.AddEvent(market.EventModifier{Title: "Crash", DriftModifier: -0.05, Severity: market.SeverityCritical, Duration: 20})
	if ev.ID == "" || ev.RemainingTicks != 20 {
		t.Fatalf("event not registered: %+v", ev)
	}
	if len(s.Events()) != 1 {
		t.Fatalf("events = %d", len(s.Events()))
	}
	if s.Sentiment().Global >= 0 {
		t.Fatalf("adverse event should push sentiment negative: %+v", s.Sentiment())
	}
}

func TestRunnerPublishesAndJournals(t *testing.T) {
	s := NewSession(Options{Seed: 7, Competitors: 4, Logger: quietLogger()})
	rec, err := store.NewSQLite(t.TempDir() + "/journal.db")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	r := NewRunner(s, rec, quietLogger())

	ch, cancel := r.Subscribe()
	sum, err := r.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	select {
	case got := <-ch:
		if got.Clock.Tick != sum.Clock.Tick {
			t.Fatalf("published tick %d, want %d", got.Clock.Tick, sum.Clock.Tick)
		}
	case <-time.After(time.Second):
		t.Fatalf("no summary published")
	}
	cancel()

	id := s.companies[0].ID
	hist, err := r.History(context.Background(), id, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].Price != sum.Prices[id] {
		t.Fatalf("unexpected journal history %+v", hist)
	}

	_, cancel2 := r.Subscribe()
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	cancel2()
	if _, err := r.Step(context.Background()); !errors.Is(err, ErrPricerClosed) {
		t.Fatalf("expected ErrPricerClosed after close, got %v", err)
	}
}

// exclusiveRecorder notes any two calls that overlap.
type exclusiveRecorder struct {
	store.Noop
	inflight atomic.Int32
	overlap  atomic.Bool
}

func (e *exclusiveRecorder) enter() func() {
	if e.inflight.Add(1) > 1 {
		e.overlap.Store(true)
	}
	time.Sleep(20 * time.Microsecond)
	return func() { e.inflight.Add(-1) }
}

func (e *exclusiveRecorder) RecordTick(context.Context, store.TickRecord) error {
	defer e.enter()()
	return nil
}

func (e *exclusiveRecorder) RecordActions(context.Context, string, []competitor.TradeAction) error {
	defer e.enter()()
	return nil
}

func (e *exclusiveRecorder) PriceHistory(context.Context, string, string, int) ([]store.PricePoint, error) {
	defer e.enter()()
	return nil, nil
}

func (e *exclusiveRecorder) Prune(context.Context, string, int) (int64, error) {
	defer e.enter()()
	return 0, nil
}

func TestRunnerSerializesRecorder(t *testing.T) {
	rec := &exclusiveRecorder{}
	r := NewRunner(NewSession(Options{Seed: 11, Competitors: 2, Logger: quietLogger()}), rec, quietLogger())
	defer r.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := r.Step(ctx); err != nil {
				t.Errorf("step: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := r.Prune(ctx, 10); err != nil {
				t.Errorf("prune: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := r.History(ctx, "nimbus", 10); err != nil {
				t.Errorf("history: %v", err)
				return
			}
		}
	}()
	wg.Wait()
	if rec.overlap.Load() {
		t.Fatalf("recorder calls overlapped")
	}
}

func TestRunnerRunStopsOnCancel(t *testing.T) {
	s := NewSession(Options{Seed: 3, Competitors: 2, Logger: quietLogger()})
	r := NewRunner(s, nil, quietLogger())
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, unsub := r.Subscribe()
	defer unsub()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, time.Millisecond) }()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("runner never ticked")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
}

func TestVolatilityScale(t *testing.T) {
	if VolatilityScale("calm") >= VolatilityScale("mor") || VolatilityScale("wild") <= VolatilityScale("mor") {
		t.Fatalf("volatility modes out of order")
	}
	if VolatilityScale("unknown") != 1 {
		t.Fatalf("unknown mode should fall back to 1")
	}
}

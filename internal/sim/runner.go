package sim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"marketsim/internal/store"
)

const subscriberBuffer = 16

// Runner owns a session, steps it on a clock and journals every tick.
type Runner struct {
	mu      sync.Mutex
	session *Session
	log     *slog.Logger

	// recMu serializes every call into rec.
	recMu sync.Mutex
	rec   store.Recorder

	subMu sync.Mutex
	subs  map[chan TickSummary]struct{}
}

func NewRunner(s *Session, rec store.Recorder, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = store.Noop{}
	}
	return &Runner{
		session: s,
		rec:     rec,
		log:     logger,
		subs:    make(map[chan TickSummary]struct{}),
	}
}

func (r *Runner) SessionID() string { return r.session.ID }

// Run steps the session every interval until ctx ends.
func (r *Runner) Run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.log.Info("runner started", "session_id", r.session.ID, "tick_every", every.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("runner shutdown", "session_id", r.session.ID)
			return nil
		case <-ticker.C:
			if _, err := r.Step(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, ErrPricerClosed) {
					return nil
				}
				r.log.Error("market tick failed", "session_id", r.session.ID, "err", err)
			}
		}
	}
}

// Step advances one tick, journals it and notifies subscribers. Journal
// failures are logged and do not fail the tick.
func (r *Runner) Step(ctx context.Context) (TickSummary, error) {
	r.mu.Lock()
	sum, err := r.session.Step(ctx)
	var points []store.PricePoint
	if err == nil {
		points = make([]store.PricePoint, 0, len(r.session.companies))
		for _, c := range r.session.companies {
			points = append(points, store.PricePoint{
				CompanyID:    c.ID,
				Price:        c.Price,
				NetBuyVolume: c.InstitutionFlow.NetBuyVolume,
				Ownership:    c.InstitutionFlow.InstitutionalOwnership,
			})
		}
	}
	r.mu.Unlock()
	if err != nil {
		return TickSummary{}, err
	}

	r.journal(ctx, sum, points)
	r.publish(sum)
	return sum, nil
}

func (r *Runner) journal(ctx context.Context, sum TickSummary, points []store.PricePoint) {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	rec := store.TickRecord{
		SessionID:  sum.SessionID,
		Tick:       sum.Clock.Tick,
		Index:      sum.Index,
		Breaker:    sum.Breaker.Level,
		RecordedAt: time.Now().UTC(),
		Prices:     points,
	}
	if err := r.rec.RecordTick(ctx, rec); err != nil {
		r.log.Error("record tick failed", "session_id", sum.SessionID, "tick", sum.Clock.Tick, "err", err)
	}
	if err := r.rec.RecordActions(ctx, sum.SessionID, sum.Actions); err != nil {
		r.log.Error("record actions failed", "session_id", sum.SessionID, "tick", sum.Clock.Tick, "err", err)
	}
	if st := sum.Settlement; st != nil {
		err := r.rec.RecordSettlement(ctx, store.SettlementRecord{
			SessionID:   sum.SessionID,
			Year:        st.Year,
			Month:       st.Month,
			Tier:        string(st.Tier),
			StartAssets: st.StartAssets,
			EndAssets:   st.EndAssets,
			ReturnRate:  st.ReturnRate,
			TaxPaid:     st.TaxPaid,
		})
		if err != nil {
			r.log.Error("record settlement failed", "session_id", sum.SessionID, "err", err)
		}
	}
}

// Subscribe returns a channel of tick summaries and a cancel func. Slow
// subscribers miss ticks rather than stall the runner.
func (r *Runner) Subscribe() (<-chan TickSummary, func()) {
	ch := make(chan TickSummary, subscriberBuffer)
	r.subMu.Lock()
	r.subs[ch] = struct{}{}
	r.subMu.Unlock()

	return ch, func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}
}

func (r *Runner) publish(sum TickSummary) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- sum:
		default:
		}
	}
}

// Do runs fn with exclusive access to the session.
func (r *Runner) Do(fn func(s *Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.session)
}

// Prune trims the journal to the newest keep ticks.
func (r *Runner) Prune(ctx context.Context, keep int) (int64, error) {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	return r.rec.Prune(ctx, r.session.ID, keep)
}

func (r *Runner) History(ctx context.Context, companyID string, limit int) ([]store.PricePoint, error) {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	return r.rec.PriceHistory(ctx, r.session.ID, companyID, limit)
}

func (r *Runner) Close() error {
	r.mu.Lock()
	r.session.Close()
	r.mu.Unlock()

	r.subMu.Lock()
	for ch := range r.subs {
		delete(r.subs, ch)
		close(ch)
	}
	r.subMu.Unlock()

	r.recMu.Lock()
	defer r.recMu.Unlock()
	return r.rec.Close()
}

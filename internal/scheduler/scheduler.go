package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"marketsim/internal/sim"
)

// Target is what the scheduled jobs act on. *sim.Runner satisfies it.
type Target interface {
	SessionID() string
	Prune(ctx context.Context, keep int) (int64, error)
	Do(fn func(s *sim.Session) error) error
}

// Scheduler runs journal housekeeping and status reports on cron schedules.
type Scheduler struct {
	cron        *cron.Cron
	target      Target
	log         *slog.Logger
	retainTicks int
}

func New(target Target, retainTicks int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:        cron.New(),
		target:      target,
		log:         logger,
		retainTicks: retainTicks,
	}
}

// Register adds the prune and status jobs. Specs use the standard five-field
// syntax or descriptors such as "@every 10m".
func (s *Scheduler) Register(ctx context.Context, pruneSpec, statusSpec string) error {
	if _, err := s.cron.AddFunc(pruneSpec, func() { s.Prune(ctx) }); err != nil {
		return fmt.Errorf("register prune job: %w", err)
	}
	if _, err := s.cron.AddFunc(statusSpec, s.Status); err != nil {
		return fmt.Errorf("register status job: %w", err)
	}
	return nil
}

// Run starts the cron loop and blocks until ctx ends, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) Prune(ctx context.Context) {
	removed, err := s.target.Prune(ctx, s.retainTicks)
	if err != nil {
		s.log.Error("journal prune failed", "session_id", s.target.SessionID(), "err", err)
		return
	}
	s.log.Info("journal pruned", "session_id", s.target.SessionID(), "rows", removed, "retain_ticks", s.retainTicks)
}

// Status logs a one-line market report.
func (s *Scheduler) Status() {
	_ = s.target.Do(func(sess *sim.Session) error {
		clock := sess.Clock()
		st := sess.Sentiment()
		s.log.Info("market status",
			"session_id", sess.ID,
			"tick", clock.Tick,
			"year", clock.Year,
			"month", clock.Month,
			"index", sess.Index(),
			"fear_greed", st.FearGreedIndex,
			"tier", sess.Pressure().Tier,
			"breaker_level", sess.Breaker().Level,
		)
		return nil
	})
}

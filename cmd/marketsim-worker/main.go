package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"marketsim/internal/config"
	"marketsim/internal/market"
	"marketsim/internal/scheduler"
	"marketsim/internal/sim"
	"marketsim/internal/store"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	rec, err := store.Open(ctx, store.Config{DatabaseURL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath}, logger)
	if err != nil {
		logger.Error("journal open failed", "err", err)
		return 1
	}

	runner := sim.NewRunner(sim.NewSession(cfg.Engine.SessionOptions(logger)), rec, logger)
	defer runner.Close()

	if cfg.WorkerRunOnce {
		if err := runMonth(ctx, runner, logger); err != nil {
			logger.Error("run-once failed", "err", err)
			return 1
		}
		logger.Info("worker run-once completed", "session_id", runner.SessionID())
		return 0
	}

	sched := scheduler.New(runner, cfg.RetainTicks, logger)
	if err := sched.Register(ctx, cfg.PruneCron, cfg.StatusCron); err != nil {
		logger.Error("scheduler init failed", "err", err)
		return 1
	}

	logger.Info("worker started",
		"session_id", runner.SessionID(),
		"seed", cfg.Engine.Seed,
		"tick_every", cfg.TickEvery.String(),
		"volatility", cfg.Engine.Volatility,
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx, cfg.TickEvery) })
	g.Go(func() error { return sched.Run(gctx) })
	if err := g.Wait(); err != nil {
		logger.Error("worker failed", "err", err)
		return 1
	}
	logger.Info("worker shutdown")
	return 0
}

// runMonth steps one in-game month back to back and logs the settlement.
func runMonth(ctx context.Context, runner *sim.Runner, logger *slog.Logger) error {
	for i := 0; i < market.TicksPerMonth; i++ {
		sum, err := runner.Step(ctx)
		if err != nil {
			return err
		}
		if sum.Settlement == nil {
			continue
		}
		st := sum.Settlement
		logger.Info("month settled",
			"year", st.Year,
			"month", st.Month,
			"tier", st.Tier,
			"return_rate", st.ReturnRate,
			"tax_paid", st.TaxPaid,
			"index", sum.Index,
		)
	}
	return nil
}

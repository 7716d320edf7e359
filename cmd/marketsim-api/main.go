package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"marketsim/internal/api"
	"marketsim/internal/config"
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

	session := sim.NewSession(cfg.Engine.SessionOptions(logger))
	runner := sim.NewRunner(session, rec, logger)
	defer runner.Close()

	sched := scheduler.New(runner, cfg.RetainTicks, logger)
	if err := sched.Register(ctx, cfg.PruneCron, cfg.StatusCron); err != nil {
		logger.Error("scheduler init failed", "err", err)
		return 1
	}

	server := api.New(cfg, logger, runner)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx, cfg.TickEvery)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("marketsim api listening",
			"addr", cfg.Addr,
			"session_id", session.ID,
			"seed", cfg.Engine.Seed,
			"tick_every", cfg.TickEvery.String(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "err", err)
		return 1
	}
	logger.Info("marketsim api stopped")
	return 0
}

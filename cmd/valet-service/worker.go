package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kushalX13/CurbKey/internal/config"
	"github.com/kushalX13/CurbKey/internal/store"
	"github.com/kushalX13/CurbKey/internal/telemetry"
	"github.com/kushalX13/CurbKey/internal/worker"
)

func runWorkerCmd(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, storeCloser, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer storeCloser.Close()

	runScheduler(ctx, cfg, logger, st)
	return nil
}

func runScheduler(ctx context.Context, cfg config.Config, logger *slog.Logger, st store.Store) {
	scheduler := worker.New(st, worker.Config{BatchSize: cfg.SchedulerBatchSize, Logger: logger})
	logger.Info("scheduler started", slog.Duration("interval", cfg.SchedulerInterval))
	worker.Start(ctx, cfg.SchedulerInterval, scheduler)
	logger.Info("scheduler stopped")
}

// runDevCmd serves HTTP and runs the scheduler against one store, so the
// memory driver works end to end in a single process.
func runDevCmd(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, storeCloser, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer storeCloser.Close()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runScheduler(ctx, cfg, logger, st)
	}()
	defer func() {
		cancel()
		<-done
	}()
	return serveHTTP(ctx, cfg, logger, st)
}

func runTickCmd(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, storeCloser, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer storeCloser.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	flipped, err := worker.New(st, worker.Config{BatchSize: cfg.SchedulerBatchSize, Logger: logger}).RunOnce(ctx)
	if err != nil {
		logger.Error("tick failed", slog.Any(telemetry.LogFieldErr, err))
		return err
	}
	logger.Info("tick finished", slog.Int("flipped", flipped))
	return nil
}

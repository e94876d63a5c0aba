package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

// ErrTickRunning is returned when a tick is already in progress in this
// process.
var ErrTickRunning = errors.New("scheduler tick already running")

// Ticker flips due scheduled requests. The store implements it.
type Ticker interface {
	Tick(ctx context.Context, now time.Time, batchSize int) (int, error)
}

type Scheduler struct {
	store     Ticker
	clock     clock.Clock
	logger    *slog.Logger
	batchSize int
	running   atomic.Bool
}

type Config struct {
	BatchSize int
	Clock     clock.Clock
	Logger    *slog.Logger
}

func New(store Ticker, cfg Config) *Scheduler {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     store,
		clock:     clk,
		logger:    logger.With(slog.String(telemetry.LogFieldComponent, "scheduler")),
		batchSize: batch,
	}
}

// RunOnce flips every scheduled request that is due now. Overlapping calls
// in one process get ErrTickRunning; across processes the store's
// conditional update keeps each flip to exactly one winner.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrTickRunning
	}
	defer s.running.Store(false)

	flipped, err := Drain(ctx, s.store, s.clock.Now(), s.batchSize)
	if err != nil {
		return flipped, err
	}
	if flipped > 0 {
		s.logger.InfoContext(ctx, "scheduled requests activated", slog.Int("flipped", flipped), telemetry.TraceAttr(ctx))
	}
	return flipped, nil
}

// Drain ticks in batches until a batch comes back short, so every request
// due at now is flipped. Each batch commits on its own.
func Drain(ctx context.Context, t Ticker, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	total := 0
	for {
		flipped, err := t.Tick(ctx, now, batchSize)
		total += flipped
		if err != nil || flipped < batchSize {
			return total, err
		}
	}
}

// Start runs a tick every interval until ctx is done. The first tick runs
// immediately.
func Start(ctx context.Context, interval time.Duration, s *Scheduler) {
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "scheduler tick failed", slog.Any(telemetry.LogFieldErr, err))
		}
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/config"
	"github.com/kushalX13/CurbKey/internal/events"
	"github.com/kushalX13/CurbKey/internal/httpapi"
	"github.com/kushalX13/CurbKey/internal/stats"
	"github.com/kushalX13/CurbKey/internal/store"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

func runHttpServerCmd(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, storeCloser, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer storeCloser.Close()
	return serveHTTP(ctx, cfg, logger, st)
}

func serveHTTP(ctx context.Context, cfg config.Config, logger *slog.Logger, st store.Store) error {
	shutdownTelemetry := telemetry.Setup(telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    true,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	claims, claimCloser, err := newClaims(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	defer claimCloser.Close()

	publisher, natsCloser, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsCloser.Close()

	hub := events.NewHub(logger)
	tailerOpts := events.TailerOptions{
		Interval:  cfg.PollInterval,
		BatchSize: cfg.PollBatchSize,
		Logger:    logger,
	}
	if publisher != nil {
		tailerOpts.Publisher = publisher
	}
	tailer := events.NewTailer(st, hub, tailerOpts)
	if err := tailer.Seek(ctx); err != nil {
		return fmt.Errorf("event tailer: %w", err)
	}
	go tailer.Run(ctx)

	proxies, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	clk := clock.Real()
	handler := httpapi.NewHandler(st, httpapi.Options{
		Claims:         claims,
		Stats:          stats.NewService(st, clk),
		Hub:            hub,
		Clock:          clk,
		Logger:         logger,
		Validate:       validator.New(),
		ClaimTTL:       cfg.ClaimTTL,
		TickBatch:      cfg.SchedulerBatchSize,
		StreamDuration: cfg.SSEMaxDuration,
		StreamPoll:     cfg.PollInterval,
		TrustedProxies: proxies,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		TrustedProxies: proxies,
	})

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(handler.Routes())), serviceName)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           otelHandler,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.SSEMaxDuration + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("http server started", slog.String("addr", srv.Addr), slog.String("store", cfg.StoreDriver))

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutDown); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

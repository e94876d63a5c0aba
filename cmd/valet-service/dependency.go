package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/kushalX13/CurbKey/internal/claim"
	"github.com/kushalX13/CurbKey/internal/clock"
	"github.com/kushalX13/CurbKey/internal/config"
	"github.com/kushalX13/CurbKey/internal/events"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/store"
	"github.com/kushalX13/CurbKey/internal/store/memory"
	"github.com/kushalX13/CurbKey/internal/store/postgres"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

type closer func()

func (c closer) Close() error {
	c()
	return nil
}

// newStore opens the configured store. The memory driver is for local runs
// and comes up with one seeded venue and staff sessions.
func newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return seedMemory(cfg, logger), closer(func() {}), nil
	case config.DriverPostgres, "":
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DB_DSN is required for the postgres store")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	poolCfg.ConnConfig.Tracer = telemetry.PgxTracer{}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.NewStore(pool, postgres.Options{ClaimTTL: cfg.ClaimTTL}), closer(pool.Close), nil
}

func seedMemory(cfg config.Config, logger *slog.Logger) *memory.Store {
	st := memory.NewStore()
	slug := cfg.SeedVenueSlug
	if slug == "" {
		slug = "demo"
	}
	venue := st.AddVenue("Demo Venue", slug, "A", "B")
	if cfg.SeedValetSession != "" {
		st.AddSession(store.Session{SessionID: cfg.SeedValetSession, UserID: "valet", VenueID: venue.ID, Role: models.RoleValet})
	}
	if cfg.SeedManagerSession != "" {
		st.AddSession(store.Session{SessionID: cfg.SeedManagerSession, UserID: "manager", VenueID: venue.ID, Role: models.RoleManager})
	}
	logger.Info("memory store seeded",
		slog.Int64(telemetry.LogFieldVenueID, venue.ID),
		slog.String("venue_slug", slug),
		slog.String("valet_session", cfg.SeedValetSession),
		slog.String("manager_session", cfg.SeedManagerSession))
	return st
}

func newRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// newClaims builds the claim service. Attempt counters live in redis when
// REDIS_ADDR is set so every replica sees the same limits.
func newClaims(ctx context.Context, cfg config.Config, st store.Store, logger *slog.Logger) (*claim.Service, io.Closer, error) {
	options := claim.Options{
		Clock:  clock.Real(),
		Logger: logger,
		Limits: claim.Limits{
			PhoneMaxFailures: cfg.PhoneMaxFailures,
			VenueMaxFailures: cfg.VenueMaxFailures,
			IPMaxAttempts:    cfg.IPMaxAttempts,
		},
	}
	failureWindow, ipWindow := cfg.ClaimWindow, cfg.IPWindow
	if failureWindow <= 0 {
		failureWindow = claim.DefaultFailureWindow
	}
	if ipWindow <= 0 {
		ipWindow = claim.DefaultIPWindow
	}
	if cfg.RedisAddr == "" {
		options.Failures = claim.NewMemoryLimiter(options.Clock, failureWindow)
		options.Attempts = claim.NewMemoryLimiter(options.Clock, ipWindow)
		return claim.NewService(st, options), closer(func() {}), nil
	}

	rdb, err := newRedis(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	options.Failures = claim.NewRedisLimiter(rdb, "curbkey:claim:fail:", failureWindow)
	options.Attempts = claim.NewRedisLimiter(rdb, "curbkey:claim:ip:", ipWindow)
	return claim.NewService(st, options), rdb, nil
}

// newPublisher connects to NATS and makes sure the event stream exists. It
// returns a nil publisher when NATS_URL is unset.
func newPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger) (*events.Publisher, io.Closer, error) {
	if cfg.NatsURL == "" {
		return nil, closer(func() {}), nil
	}
	conn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	if _, err := events.EnsureStream(ctx, js, cfg.NatsStream, events.DefaultSubjectPrefix); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("jetstream stream: %w", err)
	}
	return events.NewPublisher(js, events.DefaultSubjectPrefix, logger), closer(conn.Close), nil
}

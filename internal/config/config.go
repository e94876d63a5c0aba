// Package config loads service settings from defaults, an optional
// config.yaml and the environment.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port        int
	DatabaseURL string
	StoreDriver string
	LogLevel    string

	SeedVenueSlug      string
	SeedValetSession   string
	SeedManagerSession string

	RedisAddr     string
	RedisPassword string
	NatsURL       string
	NatsStream    string
	OtelEndpoint  string

	ClaimTTL         time.Duration
	PhoneMaxFailures int
	VenueMaxFailures int
	ClaimWindow      time.Duration
	IPMaxAttempts    int
	IPWindow         time.Duration

	RateLimitPerMinute int
	RateLimitBurst     int
	TrustedProxies     []string

	SchedulerInterval  time.Duration
	SchedulerBatchSize int
	PollInterval       time.Duration
	PollBatchSize      int
	SSEMaxDuration     time.Duration

	SyncFailureThreshold int
	SyncBackoff          time.Duration
}

// envBindings keeps the flat environment names operators already use.
var envBindings = map[string]string{
	"server.port":              "PORT",
	"db.dsn":                   "DB_DSN",
	"store.driver":             "STORE_DRIVER",
	"store.seed_venue":         "STORE_SEED_VENUE",
	"store.seed_valet":         "STORE_SEED_VALET_SESSION",
	"store.seed_manager":       "STORE_SEED_MANAGER_SESSION",
	"redis.addr":               "REDIS_ADDR",
	"redis.password":           "REDIS_PASSWORD",
	"nats.url":                 "NATS_URL",
	"nats.stream":              "NATS_STREAM",
	"otel.endpoint":            "OTEL_EXPORTER_OTLP_ENDPOINT",
	"claim.code_ttl":           "CLAIM_CODE_TTL",
	"claim.phone_max_failures": "CLAIM_PHONE_MAX_FAILURES",
	"claim.venue_max_failures": "CLAIM_VENUE_MAX_FAILURES",
	"claim.window":             "CLAIM_WINDOW",
	"claim.ip_max_attempts":    "CLAIM_IP_MAX_ATTEMPTS",
	"claim.ip_window":          "CLAIM_IP_WINDOW",
	"ratelimit.ip_per_minute":  "RATE_LIMIT_PER_MIN",
	"ratelimit.ip_burst":       "RATE_LIMIT_BURST",
	"ratelimit.proxies":        "TRUSTED_PROXIES",
	"scheduler.interval":       "SCHEDULER_INTERVAL",
	"scheduler.batch_size":     "SCHEDULER_BATCH_SIZE",
	"realtime.poll_interval":   "REALTIME_POLL_INTERVAL",
	"realtime.batch_size":      "REALTIME_BATCH_SIZE",
	"sse.max_duration":         "SSE_MAX_DURATION",
	"sync.failure_threshold":   "SYNC_FAILURE_THRESHOLD",
	"sync.backoff":             "SYNC_BACKOFF",
	"log.level":                "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("store.seed_venue", "demo")
	v.SetDefault("store.seed_valet", "dev-valet")
	v.SetDefault("store.seed_manager", "dev-manager")
	v.SetDefault("nats.stream", "VALET_EVENTS")
	v.SetDefault("claim.code_ttl", 6*time.Hour)
	v.SetDefault("claim.phone_max_failures", 5)
	v.SetDefault("claim.venue_max_failures", 30)
	v.SetDefault("claim.window", 15*time.Minute)
	v.SetDefault("claim.ip_max_attempts", 15)
	v.SetDefault("claim.ip_window", 5*time.Minute)
	v.SetDefault("ratelimit.ip_per_minute", 120)
	v.SetDefault("ratelimit.ip_burst", 30)
	v.SetDefault("scheduler.interval", 60*time.Second)
	v.SetDefault("scheduler.batch_size", 100)
	v.SetDefault("realtime.poll_interval", time.Second)
	v.SetDefault("realtime.batch_size", 100)
	v.SetDefault("sse.max_duration", 50*time.Second)
	v.SetDefault("sync.failure_threshold", 3)
	v.SetDefault("sync.backoff", 1500*time.Millisecond)
	v.SetDefault("log.level", "info")
}

// New builds a viper instance with defaults and env bindings applied. A
// config.yaml in the working directory, or the file named by
// CURBKEY_CONFIG, is read when present.
func New() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path := strings.TrimSpace(os.Getenv("CURBKEY_CONFIG")); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

func FromViper(v *viper.Viper) Config {
	return Config{
		Port:        v.GetInt("server.port"),
		DatabaseURL: v.GetString("db.dsn"),
		StoreDriver: strings.ToLower(v.GetString("store.driver")),
		LogLevel:    v.GetString("log.level"),

		SeedVenueSlug:      v.GetString("store.seed_venue"),
		SeedValetSession:   v.GetString("store.seed_valet"),
		SeedManagerSession: v.GetString("store.seed_manager"),

		RedisAddr:     v.GetString("redis.addr"),
		RedisPassword: v.GetString("redis.password"),
		NatsURL:       v.GetString("nats.url"),
		NatsStream:    v.GetString("nats.stream"),
		OtelEndpoint:  v.GetString("otel.endpoint"),

		ClaimTTL:         v.GetDuration("claim.code_ttl"),
		PhoneMaxFailures: v.GetInt("claim.phone_max_failures"),
		VenueMaxFailures: v.GetInt("claim.venue_max_failures"),
		ClaimWindow:      v.GetDuration("claim.window"),
		IPMaxAttempts:    v.GetInt("claim.ip_max_attempts"),
		IPWindow:         v.GetDuration("claim.ip_window"),

		RateLimitPerMinute: v.GetInt("ratelimit.ip_per_minute"),
		RateLimitBurst:     v.GetInt("ratelimit.ip_burst"),
		TrustedProxies:     v.GetStringSlice("ratelimit.proxies"),

		SchedulerInterval:  v.GetDuration("scheduler.interval"),
		SchedulerBatchSize: v.GetInt("scheduler.batch_size"),
		PollInterval:       v.GetDuration("realtime.poll_interval"),
		PollBatchSize:      v.GetInt("realtime.batch_size"),
		SSEMaxDuration:     v.GetDuration("sse.max_duration"),

		SyncFailureThreshold: v.GetInt("sync.failure_threshold"),
		SyncBackoff:          v.GetDuration("sync.backoff"),
	}
}

func Load() (Config, error) {
	v, err := New()
	if err != nil {
		return Config{}, err
	}
	return FromViper(v), nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CURBKEY_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 6*time.Hour, cfg.ClaimTTL)
	assert.Equal(t, 5, cfg.PhoneMaxFailures)
	assert.Equal(t, 30, cfg.VenueMaxFailures)
	assert.Equal(t, 15, cfg.IPMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.IPWindow)
	assert.Equal(t, 60*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 100, cfg.SchedulerBatchSize)
	assert.Equal(t, 50*time.Second, cfg.SSEMaxDuration)
	assert.Equal(t, 3, cfg.SyncFailureThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.SyncBackoff)
	assert.Equal(t, "demo", cfg.SeedVenueSlug)
	assert.Equal(t, "dev-valet", cfg.SeedValetSession)
	assert.Equal(t, "dev-manager", cfg.SeedManagerSession)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CURBKEY_CONFIG", "")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DSN", "postgres://valet@localhost/valet")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("SCHEDULER_INTERVAL", "15s")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8 127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres://valet@localhost/valet", cfg.DatabaseURL)
	assert.Equal(t, 10, cfg.RateLimitPerMinute)
	assert.Equal(t, 15*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valet.yaml")
	content := "claim:\n  code_ttl: 2h\n  phone_max_failures: 3\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CURBKEY_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.ClaimTTL)
	assert.Equal(t, 3, cfg.PhoneMaxFailures)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30, cfg.VenueMaxFailures)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("CURBKEY_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.Error(t, err)
}

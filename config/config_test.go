package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "file:scheduler.db"
sweeper:
  enabled: true
  interval_seconds: 600
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Sweeper.MaxDuration)
	assert.Equal(t, 200, cfg.Sweeper.BatchSize)
	assert.Equal(t, "UTC", cfg.Sweeper.Timezone)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Directory.CacheTTL)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_DATABASE_DSN", "postgres://override")
	t.Setenv("SCHEDULER_VAPID_PUBLIC_KEY", "pub")
	t.Setenv("SCHEDULER_VAPID_PRIVATE_KEY", "priv")

	cfg, err := Load(writeConfig(t, "database:\n  dsn: \"file:ignored.db\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://override", cfg.Database.DSN)
	assert.True(t, cfg.Push.Enabled())
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "sweeper:\n  timezone: \"Mars/Olympus\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn is required")
	assert.Contains(t, err.Error(), "sweeper.timezone is invalid")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8*time.Hour, cfg.Session.MaxDuration)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 3, cfg.Session.MaxConcurrentSessions)
	assert.Equal(t, "*", cfg.Masking.DefaultMaskChar)
	assert.Equal(t, 7*365*24*time.Hour, cfg.Audit.RetentionPeriod)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
environment: production
server:
  port: 9090
session:
  max_concurrent_sessions: 5
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Session.MaxConcurrentSessions)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAB_ENVIRONMENT", "staging")
	t.Setenv("CAB_REDIS_URL", "redis.internal:6380")
	t.Setenv("CAB_REDIS_DB", "2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.URL)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("CAB_ENVIRONMENT", "galaxy")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/parley/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "flows", cfg.Flows.Dir)
	assert.Equal(t, "file", cfg.Flows.Driver)
	assert.Equal(t, "main.flow.json", cfg.Flows.DefaultFlow)
	assert.Equal(t, "memory", cfg.Sessions.Driver)
	assert.Equal(t, 5*time.Second, cfg.Evaluator.Timeout)
	assert.Equal(t, 2, cfg.Queue.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Janitor.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Janitor.Inactivity)
	assert.True(t, cfg.Janitor.Enabled)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "dialog_sessions", cfg.Sessions.Postgres.Table)
	assert.Empty(t, cfg.Sessions.EncryptionKey)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	t.Setenv("PARLEY_TEST_REDIS", "cache:6380")

	cfg, err := config.Parse([]byte(`
flows:
  dir: bots
sessions:
  driver: redis
  redis:
    addr: ${PARLEY_TEST_REDIS}
    ttl: 1h
janitor:
  enabled: false
log:
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "bots", cfg.Flows.Dir)
	assert.Equal(t, "file", cfg.Flows.Driver)
	assert.Equal(t, "redis", cfg.Sessions.Driver)
	assert.Equal(t, "cache:6380", cfg.Sessions.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Sessions.Redis.TTL)
	assert.Equal(t, "parley:", cfg.Sessions.Redis.Prefix)
	assert.False(t, cfg.Janitor.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestParse_Rejections(t *testing.T) {
	cases := map[string]string{
		"unknown flow driver":    "flows:\n  driver: s3\n",
		"unknown session driver": "sessions:\n  driver: mongo\n",
		"postgres without dsn":   "sessions:\n  driver: postgres\n",
		"bad redis address":      "sessions:\n  redis:\n    addr: nowhere\n",
		"bad webhook url":        "webhook:\n  url: not a url\n",
		"zero evaluator timeout": "evaluator:\n  timeout: 0s\n",
		"bad log level":          "log:\n  level: loud\n",
		"bad encryption key":     "sessions:\n  encryptionKey: \"%%%\"\n",
		"malformed yaml":         "flows: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":9090\"\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_FallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Sessions.Driver)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
environment: test
backend:
  type: clickhouse
  batch_size: 100
  batch_timeout: 2s
feed:
  api_key: key123
  websocket_url: wss://ws.example.com
  symbols: ["BTCUSDT", "ETHUSDT"]
  timestamps: ms
rangebar:
  threshold_decibps: 250
  replay_window: 5m
streaming:
  policy: drop_oldest
  queue_size: 2048
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "clickhouse", cfg.Backend.Type)
	assert.Equal(t, 2*time.Second, cfg.Backend.BatchTimeout)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Feed.Symbols)
	assert.Equal(t, "ms", cfg.Feed.Timestamps)
	assert.Equal(t, int64(250), cfg.RangeBar.ThresholdDecibps)
	assert.Equal(t, 5*time.Minute, cfg.RangeBar.ReplayWindow)
	assert.Equal(t, "drop_oldest", cfg.Streaming.Policy)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("FEED_API_KEY", "env-key")
	t.Setenv("SYMBOLS", "SOLUSDT")
	t.Setenv("BACKEND", "kafka")
	t.Setenv("THRESHOLD_DECIBPS", "500")

	cfg, err := LoadWithEnv(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Feed.APIKey)
	assert.Equal(t, []string{"SOLUSDT"}, cfg.Feed.Symbols)
	assert.Equal(t, "kafka", cfg.Backend.Type)
	assert.Equal(t, int64(500), cfg.RangeBar.ThresholdDecibps)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing environment": "backend:\n  type: kafka\n",
		"bad backend":         "environment: t\nbackend:\n  type: mysql\n",
		"no symbols":          "environment: t\nbackend:\n  type: kafka\nfeed:\n  api_key: k\n",
		"no api key":          "environment: t\nbackend:\n  type: kafka\nfeed:\n  symbols: [\"A\"]\n",
		"zero threshold":      "environment: t\nbackend:\n  type: kafka\nfeed:\n  api_key: k\n  symbols: [\"A\"]\n",
		"bad policy":          "environment: t\nbackend:\n  type: kafka\nfeed:\n  api_key: k\n  symbols: [\"A\"]\nrangebar:\n  threshold_decibps: 1\nstreaming:\n  policy: spill\n",
		"bad timestamps":      "environment: t\nbackend:\n  type: kafka\nfeed:\n  api_key: k\n  symbols: [\"A\"]\n  timestamps: weeks\nrangebar:\n  threshold_decibps: 1\n",
	}
	for name, yaml := range cases {
		_, err := Load(writeConfig(t, yaml))
		assert.Error(t, err, name)
	}
}

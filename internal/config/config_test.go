package config

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendSQL, cfg.EventBackend)
	require.Equal(t, "sqlite", cfg.EventsDriver)
	require.Equal(t, 1024, cfg.StateCacheSize)
	require.Equal(t, uint(5), cfg.RetryMaxTries)
}

func TestLoad_env(t *testing.T) {
	t.Setenv("ESK_EVENT_BACKEND", "nats")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("ESK_STATE_CACHE_SIZE", "0")
	t.Setenv("ESK_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendNATS, cfg.EventBackend)
	require.Equal(t, "nats://nats:4222", cfg.NATSURL)
	require.Zero(t, cfg.StateCacheSize)
}

func TestLoad_invalid(t *testing.T) {
	for name, env := range map[string][2]string{
		"backend":    {"ESK_EVENT_BACKEND", "kafka"},
		"level":      {"ESK_LOG_LEVEL", "loud"},
		"format":     {"ESK_LOG_FORMAT", "xml"},
		"cache size": {"ESK_STATE_CACHE_SIZE", "many"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestConfig_Logger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	log := Config{LogLevel: "warn", LogFormat: "json"}.Logger(&buf)

	log.Info("hidden")
	log.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
}

// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Backend selects where events are stored.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQL    Backend = "sql"
	BackendBolt   Backend = "bolt"
	BackendNATS   Backend = "nats"
)

type Config struct {
	LogLevel  string `env:"ESK_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ESK_LOG_FORMAT" envDefault:"text"`

	EventBackend Backend `env:"ESK_EVENT_BACKEND" envDefault:"sql"`
	EventsDriver string  `env:"ESK_EVENTS_DRIVER" envDefault:"sqlite"`
	EventsDSN    string  `env:"ESK_EVENTS_DSN" envDefault:"esk-events.db"`
	BoltPath     string  `env:"ESK_BOLT_PATH" envDefault:"esk.bolt"`
	NATSURL      string  `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`

	// The read model is relational unless ReadDriver is "kv", in which case
	// it lives next to the events (bolt or NATS KV, memory otherwise).
	ReadDriver string `env:"ESK_READ_DRIVER" envDefault:"sqlite"`
	ReadDSN    string `env:"ESK_READ_DSN" envDefault:"esk-read.db"`

	MetricsAddr    string `env:"ESK_METRICS_ADDR"`
	StateCacheSize int    `env:"ESK_STATE_CACHE_SIZE" envDefault:"1024"`
	RetryMaxTries  uint   `env:"ESK_RETRY_MAX_TRIES" envDefault:"5"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.EventBackend {
	case BackendMemory, BackendSQL, BackendBolt, BackendNATS:
	default:
		return fmt.Errorf("unknown event backend %q", c.EventBackend)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.StateCacheSize < 0 {
		return fmt.Errorf("state cache size must not be negative")
	}
	return nil
}

// Logger builds the process logger and installs it as the slog default.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if c.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	log := slog.New(h)
	slog.SetDefault(log)
	return log
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return l, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// Package config loads settings for the mock server and the probe client from
// the environment. Command-line flags override these values in cmd/.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/ggoodman/lsp-jsonrpc-go/internal/logctx"
)

// ServerConfig configures mock-lsp-server.
type ServerConfig struct {
	// Fixtures is an optional YAML or JSON fixtures file. ENV: MOCK_LSP_FIXTURES
	Fixtures string `env:"MOCK_LSP_FIXTURES"`
	// Strict enables LSP lifecycle gating. ENV: MOCK_LSP_STRICT
	Strict bool `env:"MOCK_LSP_STRICT,default=false"`
	// LogLevel is one of debug, info, warn, error. ENV: MOCK_LSP_LOG_LEVEL
	LogLevel string `env:"MOCK_LSP_LOG_LEVEL,default=info"`
	// LogFormat is text or json. ENV: MOCK_LSP_LOG_FORMAT
	LogFormat string `env:"MOCK_LSP_LOG_FORMAT,default=text"`
	// MetricsAddr serves Prometheus metrics when set, e.g. ":9464". ENV: MOCK_LSP_METRICS_ADDR
	MetricsAddr string `env:"MOCK_LSP_METRICS_ADDR"`
	// Rate limits handled calls per second; zero disables limiting. ENV: MOCK_LSP_RATE
	Rate float64 `env:"MOCK_LSP_RATE,default=0"`
	// Burst is the limiter bucket size, at least 1. ENV: MOCK_LSP_BURST
	Burst int `env:"MOCK_LSP_BURST,default=1"`
	// HandlerTimeout bounds each handler; zero disables it. ENV: MOCK_LSP_HANDLER_TIMEOUT
	HandlerTimeout time.Duration `env:"MOCK_LSP_HANDLER_TIMEOUT,default=0s"`
	// MaxContentLength bounds inbound frame bodies. ENV: MOCK_LSP_MAX_CONTENT_LENGTH
	MaxContentLength int64 `env:"MOCK_LSP_MAX_CONTENT_LENGTH,default=67108864"`
}

// ProbeConfig configures lsp-probe.
type ProbeConfig struct {
	// ServersFile lists launchable servers. ENV: LSP_PROBE_CONFIG
	ServersFile string `env:"LSP_PROBE_CONFIG"`
	// Server selects an entry of the servers file. ENV: LSP_PROBE_SERVER
	Server string `env:"LSP_PROBE_SERVER,default=mock"`
	// URI, Line and Character locate the position probed by hover,
	// completion and definition.
	URI       string `env:"LSP_PROBE_URI,default=file:///test/mock_file.zig"`
	Line      int    `env:"LSP_PROBE_LINE,default=10"`
	Character int    `env:"LSP_PROBE_CHARACTER,default=5"`
	// StopGrace is how long the server gets to exit before it is killed.
	StopGrace time.Duration `env:"LSP_PROBE_STOP_GRACE,default=5s"`
	// CallTimeout bounds every request of the scenario.
	CallTimeout time.Duration `env:"LSP_PROBE_CALL_TIMEOUT,default=30s"`
	LogLevel    string        `env:"LSP_PROBE_LOG_LEVEL,default=warn"`
}

// LoadServerConfig decodes a ServerConfig from the environment.
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := decode(&cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadProbeConfig decodes a ProbeConfig from the environment.
func LoadProbeConfig() (ProbeConfig, error) {
	var cfg ProbeConfig
	if err := decode(&cfg); err != nil {
		return ProbeConfig{}, err
	}
	return cfg, nil
}

func decode(target any) error {
	if err := envdecode.Decode(target); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	return nil
}

// ParseLevel parses a log level name such as "debug" or "WARN".
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// NewLogger builds a logger writing to w in the given format ("text" or
// "json") whose records carry the rpc and session context groups.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return slog.New(logctx.Wrap(h)), nil
}

// Package config loads runtime configuration for the call-session server:
// CLI flags override environment variables, which override defaults.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the call engine.
type Config struct {
	HTTPPort    int
	DataDir     string
	LogLevel    string
	LogFormat   string
	CORSOrigins string

	// HTTP requestor pool settings.
	HTTPPoolEnabled   bool
	HTTPPoolSize      int
	HTTPPipelining    int
	HTTPTimeout       time.Duration
	HTTPProxyIP       string
	HTTPProxyPort     int
	HTTPProxyProtocol string
	HTTPUserAgent     string

	// WebSocket requestor settings.
	ResponseTimeout      time.Duration
	WSPingInterval       time.Duration
	MaxReconnects        int
	WSHandshakeTimeout   time.Duration
	WSMaxPayloadBytes    int64
	WSQueueHighWaterMark int
}

const envPrefix = "JAMBONES_"

// defaults
const (
	defaultHTTPPort  = 8080
	defaultDataDir   = "./data"
	defaultLogLevel  = "info"
	defaultLogFormat = "text"

	defaultHTTPPoolSize   = 10
	defaultHTTPPipelining = 1
	defaultHTTPTimeout    = 15 * time.Second

	defaultResponseTimeoutMS    = 15000
	defaultWSHandshakeTimeoutMS = 1500
	defaultMaxReconnects        = 5
	defaultWSMaxPayloadBytes    = 24 * 1024
	defaultWSQueueHighWaterMark = 1000
)

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("callengine", flag.ContinueOnError)

	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP admin/health server listen port")
	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the account store")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["http-port"] {
		if v, ok := envInt(envPrefix + "HTTP_PORT"); ok {
			cfg.HTTPPort = v
		}
	}
	if !set["log-level"] {
		if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok && v != "" {
			cfg.LogLevel = v
		}
	}
	if !set["log-format"] {
		if v, ok := os.LookupEnv(envPrefix + "LOG_FORMAT"); ok && v != "" {
			cfg.LogFormat = v
		}
	}
	if !set["cors-origins"] {
		if v, ok := os.LookupEnv(envPrefix + "CORS_ORIGINS"); ok {
			cfg.CORSOrigins = v
		}
	}
	if !set["data-dir"] {
		if v, ok := os.LookupEnv(envPrefix + "DATA_DIR"); ok && v != "" {
			cfg.DataDir = v
		}
	}

	// Requestor environment variables have no CLI flag equivalent; they
	// are process-wide transport tuning knobs, not per-invocation switches.
	cfg.HTTPPoolEnabled = envBool("HTTP_POOL", false)
	cfg.HTTPPoolSize = envIntDefault("HTTP_POOLSIZE", defaultHTTPPoolSize)
	cfg.HTTPPipelining = envIntDefault("HTTP_PIPELINING", defaultHTTPPipelining)
	cfg.HTTPTimeout = envDurationMS("HTTP_TIMEOUT", defaultHTTPTimeout)
	cfg.HTTPProxyIP = os.Getenv("HTTP_PROXY_IP")
	cfg.HTTPProxyPort = envIntDefault("HTTP_PROXY_PORT", 0)
	cfg.HTTPProxyProtocol = os.Getenv("HTTP_PROXY_PROTOCOL")
	cfg.HTTPUserAgent = os.Getenv("HTTP_USER_AGENT_HEADER")

	cfg.ResponseTimeout = envDurationMS("RESPONSE_TIMEOUT_MS", time.Duration(defaultResponseTimeoutMS)*time.Millisecond)
	cfg.WSPingInterval = envDurationMS("JAMBONES_WS_PING_INTERVAL_MS", 0)
	cfg.MaxReconnects = envIntDefault("MAX_RECONNECTS", defaultMaxReconnects)
	cfg.WSHandshakeTimeout = envDurationMS("JAMBONES_WS_HANDSHAKE_TIMEOUT_MS", time.Duration(defaultWSHandshakeTimeoutMS)*time.Millisecond)
	cfg.WSMaxPayloadBytes = int64(envIntDefault("JAMBONES_WS_MAX_PAYLOAD", defaultWSMaxPayloadBytes))
	cfg.WSQueueHighWaterMark = envIntDefault("JAMBONES_WS_QUEUE_HWM", defaultWSQueueHighWaterMark)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envIntDefault(name string, def int) int {
	if v, ok := envInt(name); ok {
		return v
	}
	return def
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	return v == "1" || strings.EqualFold(v, "true")
}

func envDurationMS(name string, def time.Duration) time.Duration {
	if v, ok := envInt(name); ok && v > 0 {
		return time.Duration(v) * time.Millisecond
	}
	return def
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.MaxReconnects < 1 {
		return fmt.Errorf("max-reconnects must be at least 1, got %d", c.MaxReconnects)
	}
	return nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration for the order indexer service.
type Config struct {
	Port        string
	NodeWSURL   string
	DatabaseURL string
	// EventPrefix filters the node stream server side.
	EventPrefix    string
	ReconnectDelay time.Duration
	MaxReconnect   time.Duration

	Environment  string
	LogLevel     string
	OTELEndpoint string
	OTELInsecure bool
	OTELHeaders  string
	OTELTraces   bool
}

// FromEnv loads configuration from INDEXER_* environment variables.
func FromEnv() (*Config, error) {
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:         normalizePort(get("INDEXER_PORT", "8090")),
		NodeWSURL:    get("INDEXER_NODE_WS", ""),
		DatabaseURL:  get("INDEXER_DB_URL", "file:order-indexer.db"),
		EventPrefix:  get("INDEXER_EVENT_PREFIX", "orders."),
		Environment:  get("INDEXER_ENV", "dev"),
		LogLevel:     get("INDEXER_LOG_LEVEL", "info"),
		OTELEndpoint: get("INDEXER_OTEL_ENDPOINT", "localhost:4318"),
		OTELHeaders:  get("INDEXER_OTEL_HEADERS", ""),
	}
	if cfg.NodeWSURL == "" {
		return nil, fmt.Errorf("INDEXER_NODE_WS is required")
	}
	if !strings.HasPrefix(cfg.NodeWSURL, "ws://") && !strings.HasPrefix(cfg.NodeWSURL, "wss://") {
		return nil, fmt.Errorf("INDEXER_NODE_WS must be a ws:// or wss:// URL, got %q", cfg.NodeWSURL)
	}

	var err error
	if cfg.ReconnectDelay, err = parseDuration(get("INDEXER_RECONNECT_DELAY", "1s")); err != nil {
		return nil, fmt.Errorf("invalid INDEXER_RECONNECT_DELAY: %w", err)
	}
	if cfg.MaxReconnect, err = parseDuration(get("INDEXER_RECONNECT_MAX", "30s")); err != nil {
		return nil, fmt.Errorf("invalid INDEXER_RECONNECT_MAX: %w", err)
	}
	if cfg.MaxReconnect < cfg.ReconnectDelay {
		cfg.MaxReconnect = cfg.ReconnectDelay
	}
	if cfg.OTELInsecure, err = parseBool(get("INDEXER_OTEL_INSECURE", "false")); err != nil {
		return nil, fmt.Errorf("invalid INDEXER_OTEL_INSECURE: %w", err)
	}
	if cfg.OTELTraces, err = parseBool(get("INDEXER_OTEL_TRACES", "false")); err != nil {
		return nil, fmt.Errorf("invalid INDEXER_OTEL_TRACES: %w", err)
	}
	return cfg, nil
}

func normalizePort(port string) string {
	return strings.TrimPrefix(port, ":")
}

func parseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}

func parseBool(raw string) (bool, error) {
	return strconv.ParseBool(raw)
}

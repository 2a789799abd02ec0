package config

import (
	"testing"
	"time"
)

func lookup(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := fromLookup(lookup(map[string]string{"INDEXER_NODE_WS": "ws://localhost:8080/ws"}))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Port != "8090" || cfg.DatabaseURL != "file:order-indexer.db" || cfg.EventPrefix != "orders." {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.ReconnectDelay != time.Second || cfg.MaxReconnect != 30*time.Second {
		t.Fatalf("unexpected reconnect settings %v/%v", cfg.ReconnectDelay, cfg.MaxReconnect)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := fromLookup(lookup(map[string]string{
		"INDEXER_NODE_WS":         "wss://node.example/ws",
		"INDEXER_PORT":            ":9100",
		"INDEXER_DB_URL":          "postgres://indexer@db/orders",
		"INDEXER_RECONNECT_DELAY": "5s",
		"INDEXER_RECONNECT_MAX":   "2s",
		"INDEXER_OTEL_TRACES":     "true",
	}))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Port != "9100" || cfg.DatabaseURL != "postgres://indexer@db/orders" || !cfg.OTELTraces {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.MaxReconnect != 5*time.Second {
		t.Fatalf("max reconnect must not undercut the base delay, got %v", cfg.MaxReconnect)
	}
}

func TestFromEnvErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing node":   {},
		"http node url":  {"INDEXER_NODE_WS": "http://localhost:8080/ws"},
		"bad delay":      {"INDEXER_NODE_WS": "ws://n/ws", "INDEXER_RECONNECT_DELAY": "soon"},
		"negative delay": {"INDEXER_NODE_WS": "ws://n/ws", "INDEXER_RECONNECT_DELAY": "-1s"},
		"bad bool":       {"INDEXER_NODE_WS": "ws://n/ws", "INDEXER_OTEL_TRACES": "maybe"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := fromLookup(lookup(env)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

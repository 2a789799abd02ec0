package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `DataDir = "./data"
GenesisFile = "genesis.yaml"

[rpc]
Address = "127.0.0.1:9000"
ReadHeaderTimeout = 6
ReadTimeout = 20
WriteTimeout = 18
IdleTimeout = 45
MaxBodyBytes = 4096
TrustedProxies = ["10.0.0.1"]
TrustProxyHeaders = true
RateLimitPerSec = 5.5
RateLimitBurst = 10

[operator]
SecretEnv = "TEST_ORDERS_SECRET"
Issuer = "ops"
Audience = "ordersd"

[logging]
Level = "debug"
File = "/var/log/ordersd.log"
MaxSizeMB = 10

[telemetry]
Endpoint = "collector:4318"
Insecure = true
Traces = true
Headers = "authorization=Bearer x"
Environment = "staging"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "./data" || cfg.GenesisFile != "genesis.yaml" {
		t.Fatalf("unexpected paths %q %q", cfg.DataDir, cfg.GenesisFile)
	}
	if cfg.RPC.Address != "127.0.0.1:9000" || cfg.RPC.ReadHeaderTimeoutSec != 6 || cfg.RPC.IdleTimeoutSec != 45 {
		t.Fatalf("unexpected rpc section %+v", cfg.RPC)
	}
	if cfg.RPC.MaxBodyBytes != 4096 || !cfg.RPC.TrustProxyHeaders || len(cfg.RPC.TrustedProxies) != 1 {
		t.Fatalf("unexpected rpc limits %+v", cfg.RPC)
	}
	if cfg.RPC.RateLimitPerSec != 5.5 || cfg.RPC.RateLimitBurst != 10 {
		t.Fatalf("unexpected rate limit %v/%d", cfg.RPC.RateLimitPerSec, cfg.RPC.RateLimitBurst)
	}
	if cfg.Operator.Issuer != "ops" || cfg.Operator.Audience != "ordersd" {
		t.Fatalf("unexpected operator section %+v", cfg.Operator)
	}
	opts := cfg.LoggingOptions()
	if opts.Level != "debug" || opts.File != "/var/log/ordersd.log" || opts.MaxSizeMB != 10 {
		t.Fatalf("unexpected logging options %+v", opts)
	}
	// Unset fields keep their defaults.
	if opts.MaxBackups != 5 || opts.MaxAgeDays != 28 {
		t.Fatalf("expected default rotation settings, got %+v", opts)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.Metrics || cfg.Telemetry.Endpoint != "collector:4318" {
		t.Fatalf("unexpected telemetry section %+v", cfg.Telemetry)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.RPC.Address != defaultRPCAddress || cfg.DataDir != defaultDataDir || !cfg.Automine {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.GenesisFile != filepath.Join(dir, "nested", "genesis.yaml") {
		t.Fatalf("unexpected default genesis path %q", cfg.GenesisFile)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RPC.Address != cfg.RPC.Address || reloaded.GenesisFile != cfg.GenesisFile {
		t.Fatalf("reloaded config differs: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := "DataDir = \"./data\"\nGenesisFile = \"g.yaml\"\nValidatorKey = \"deadbeef\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaults()
	env := map[string]string{
		EnvPrefix + "DATA_DIR":       "/srv/orders",
		EnvPrefix + "RPC_ADDRESS":    "0.0.0.0:7000",
		EnvPrefix + "LOG_LEVEL":      "warn",
		EnvPrefix + "OTEL_TRACES":    "true",
		EnvPrefix + "RPC_RATE_LIMIT": "2.5",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	if err := applyEnv(cfg, lookup); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.DataDir != "/srv/orders" || cfg.RPC.Address != "0.0.0.0:7000" || cfg.Logging.Level != "warn" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if !cfg.Telemetry.Traces || cfg.RPC.RateLimitPerSec != 2.5 {
		t.Fatalf("typed overrides not applied: %+v %+v", cfg.Telemetry, cfg.RPC)
	}

	env[EnvPrefix+"OTEL_METRICS"] = "maybe"
	if err := applyEnv(cfg, lookup); err == nil {
		t.Fatalf("expected bool parse error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = " " }, "DataDir"},
		{"missing genesis", func(c *Config) { c.GenesisFile = "" }, "GenesisFile"},
		{"bad address", func(c *Config) { c.RPC.Address = "8080" }, "Address"},
		{"negative timeout", func(c *Config) { c.RPC.ReadTimeoutSec = -1 }, "timeouts"},
		{"zero body limit", func(c *Config) { c.RPC.MaxBodyBytes = 0 }, "MaxBodyBytes"},
		{"burst without limit", func(c *Config) { c.RPC.RateLimitBurst = 0 }, "RateLimitBurst"},
		{"bad proxy", func(c *Config) { c.RPC.TrustedProxies = []string{"proxy.local"} }, "trusted proxy"},
		{"bad level", func(c *Config) { c.Logging.Level = "chatty" }, "Level"},
		{"export without endpoint", func(c *Config) { c.Telemetry.Traces = true; c.Telemetry.Endpoint = "" }, "Endpoint"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			cfg.GenesisFile = "genesis.yaml"
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}

	cfg := defaults()
	cfg.GenesisFile = "genesis.yaml"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestOperatorSecret(t *testing.T) {
	cfg := defaults()
	cfg.Operator.SecretEnv = "ORDERCHAIN_TEST_OPERATOR_SECRET"
	t.Setenv("ORDERCHAIN_TEST_OPERATOR_SECRET", "  s3cret ")
	if got := string(cfg.OperatorSecret()); got != "s3cret" {
		t.Fatalf("unexpected secret %q", got)
	}
	cfg.Operator.SecretEnv = ""
	if cfg.OperatorSecret() != nil {
		t.Fatalf("expected nil secret without env name")
	}
}

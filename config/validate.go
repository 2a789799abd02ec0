package config

import (
	"fmt"
	"net"
	"strings"

	"orderchain/observability/logging"
)

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks the loaded configuration for values the daemon cannot run
// with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if strings.TrimSpace(c.GenesisFile) == "" {
		return fmt.Errorf("GenesisFile must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.RPC.Address); err != nil {
		return fmt.Errorf("rpc: invalid Address %q: %w", c.RPC.Address, err)
	}
	if c.RPC.ReadHeaderTimeoutSec < 0 || c.RPC.ReadTimeoutSec < 0 || c.RPC.WriteTimeoutSec < 0 || c.RPC.IdleTimeoutSec < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	if c.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must be positive")
	}
	if c.RPC.RateLimitPerSec < 0 {
		return fmt.Errorf("rpc: RateLimitPerSec must not be negative")
	}
	if c.RPC.RateLimitPerSec > 0 && c.RPC.RateLimitBurst <= 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive when rate limiting is enabled")
	}
	for _, proxy := range c.RPC.TrustedProxies {
		if net.ParseIP(strings.TrimSpace(proxy)) == nil {
			return fmt.Errorf("rpc: invalid trusted proxy %q", proxy)
		}
	}
	if level := strings.ToLower(strings.TrimSpace(c.Logging.Level)); level != "" {
		if _, ok := validLogLevels[level]; !ok {
			return fmt.Errorf("logging: unknown Level %q", c.Logging.Level)
		}
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	if (c.Telemetry.Traces || c.Telemetry.Metrics) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when export is enabled")
	}
	return nil
}

// LoggingOptions converts the logging section for observability/logging.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		File:       strings.TrimSpace(c.Logging.File),
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

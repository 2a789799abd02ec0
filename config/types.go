package config

// RPC configures the JSON-RPC listener.
type RPC struct {
	Address              string   `toml:"Address"`
	ReadHeaderTimeoutSec int      `toml:"ReadHeaderTimeout"`
	ReadTimeoutSec       int      `toml:"ReadTimeout"`
	WriteTimeoutSec      int      `toml:"WriteTimeout"`
	IdleTimeoutSec       int      `toml:"IdleTimeout"`
	MaxBodyBytes         int64    `toml:"MaxBodyBytes"`
	TrustedProxies       []string `toml:"TrustedProxies"`
	TrustProxyHeaders    bool     `toml:"TrustProxyHeaders"`
	// RateLimitPerSec caps calls per source address. Zero disables limiting.
	RateLimitPerSec float64 `toml:"RateLimitPerSec"`
	RateLimitBurst  int     `toml:"RateLimitBurst"`
}

// Operator guards privileged methods such as chain_mine. Tokens are HS256 JWTs
// signed with the secret read from SecretEnv.
type Operator struct {
	SecretEnv string `toml:"SecretEnv"`
	Issuer    string `toml:"Issuer"`
	Audience  string `toml:"Audience"`
}

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Headers     string `toml:"Headers"`
	Metrics     bool   `toml:"Metrics"`
	Traces      bool   `toml:"Traces"`
	Environment string `toml:"Environment"`
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// EnvPrefix namespaces the environment overrides applied by Load.
	EnvPrefix = "ORDERCHAIN_"

	defaultRPCAddress = ":8080"
	defaultDataDir    = "./orderchain-data"
)

type Config struct {
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`
	// Automine is informational: every applied call is sealed into its own
	// block, so there is no block interval to configure.
	Automine bool `toml:"Automine"`

	RPC       RPC       `toml:"rpc"`
	Operator  Operator  `toml:"operator"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path. A missing file is created
// with defaults. Environment overrides are applied last and the result is
// validated.
func Load(path string) (*Config, error) {
	var cfg *Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		cfg = defaults()
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return nil, fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		DataDir:  defaultDataDir,
		Automine: true,
		RPC: RPC{
			Address:              defaultRPCAddress,
			ReadHeaderTimeoutSec: 5,
			ReadTimeoutSec:       15,
			WriteTimeoutSec:      15,
			IdleTimeoutSec:       60,
			MaxBodyBytes:         1 << 20,
			RateLimitPerSec:      20,
			RateLimitBurst:       40,
		},
		Operator: Operator{
			SecretEnv: EnvPrefix + "OPERATOR_SECRET",
			Issuer:    "orderchain",
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaults()
	cfg.GenesisFile = filepath.Join(filepath.Dir(path), "genesis.yaml")
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// applyEnv overrides file values with ORDERCHAIN_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = parsed
		return nil
	}

	str("DATA_DIR", &cfg.DataDir)
	str("GENESIS_FILE", &cfg.GenesisFile)
	str("RPC_ADDRESS", &cfg.RPC.Address)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FILE", &cfg.Logging.File)
	str("OTEL_ENDPOINT", &cfg.Telemetry.Endpoint)
	str("OTEL_HEADERS", &cfg.Telemetry.Headers)
	str("ENV", &cfg.Telemetry.Environment)
	if err := boolean("OTEL_TRACES", &cfg.Telemetry.Traces); err != nil {
		return err
	}
	if err := boolean("OTEL_METRICS", &cfg.Telemetry.Metrics); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "RPC_RATE_LIMIT"); ok && strings.TrimSpace(v) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sRPC_RATE_LIMIT: %w", EnvPrefix, err)
		}
		cfg.RPC.RateLimitPerSec = parsed
	}
	return nil
}

// OperatorSecret returns the JWT signing secret for operator methods, or nil
// when none is configured.
func (c *Config) OperatorSecret() []byte {
	if c == nil || strings.TrimSpace(c.Operator.SecretEnv) == "" {
		return nil
	}
	secret := strings.TrimSpace(os.Getenv(c.Operator.SecretEnv))
	if secret == "" {
		return nil
	}
	return []byte(secret)
}

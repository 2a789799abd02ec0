package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"orderchain/config"
	"orderchain/core"
	"orderchain/core/genesis"
	"orderchain/observability/logging"
	telemetry "orderchain/observability/otel"
	"orderchain/rpc"
	"orderchain/storage"
)

const genesisPathEnv = "ORDERCHAIN_GENESIS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides ORDERCHAIN_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	env := strings.TrimSpace(cfg.Telemetry.Environment)
	logger := logging.SetupWithOptions("ordersd", env, cfg.LoggingOptions())

	if err := run(cfg, resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv), logger); err != nil {
		logger.Error("ordersd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, genesisPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "ordersd",
		Environment: cfg.Telemetry.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	spec, err := genesis.LoadGenesisSpec(genesisPath)
	if err != nil {
		return fmt.Errorf("load genesis spec: %w", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	node, err := core.NewNode(db, spec)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	node.SetLogger(logger)

	secret := cfg.OperatorSecret()
	if secret == nil {
		logger.Warn("operator secret not set; chain_mine is disabled", "env", cfg.Operator.SecretEnv)
	}
	server, err := rpc.NewServer(node, rpc.ServerConfig{
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		ReadHeaderTimeout: seconds(cfg.RPC.ReadHeaderTimeoutSec),
		ReadTimeout:       seconds(cfg.RPC.ReadTimeoutSec),
		WriteTimeout:      seconds(cfg.RPC.WriteTimeoutSec),
		IdleTimeout:       seconds(cfg.RPC.IdleTimeoutSec),
		RateLimitPerSec:   cfg.RPC.RateLimitPerSec,
		RateLimitBurst:    cfg.RPC.RateLimitBurst,
		TrustProxyHeaders: cfg.RPC.TrustProxyHeaders,
		TrustedProxies:    cfg.RPC.TrustedProxies,
		Operator: rpc.OperatorAuth{
			Secret:   secret,
			Issuer:   cfg.Operator.Issuer,
			Audience: cfg.Operator.Audience,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("create rpc server: %w", err)
	}

	logger.Info("node started",
		"chainId", node.ChainID(),
		"height", node.Height(),
		"dataDir", cfg.DataDir,
		"rpc", cfg.RPC.Address)
	return server.Serve(ctx, cfg.RPC.Address)
}

// resolveGenesisPath prefers the flag, then the environment, then the config
// file.
func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(configValue)
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

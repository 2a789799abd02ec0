package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderchain/observability/logging"
	telemetry "orderchain/observability/otel"
	"orderchain/services/order-indexer/api"
	"orderchain/services/order-indexer/config"
	"orderchain/services/order-indexer/follower"
	"orderchain/services/order-indexer/store"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.SetupWithOptions("order-indexer", cfg.Environment, logging.Options{Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "order-indexer",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		Headers:     telemetry.ParseHeaders(cfg.OTELHeaders),
		Traces:      cfg.OTELTraces,
	})
	if err != nil {
		log.Fatalf("telemetry init error: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	defer st.Close()

	tail, err := follower.New(follower.Config{
		URL:            cfg.NodeWSURL,
		Prefix:         cfg.EventPrefix,
		ReconnectDelay: cfg.ReconnectDelay,
		MaxReconnect:   cfg.MaxReconnect,
		Logger:         logger,
	}, st)
	if err != nil {
		log.Fatalf("follower init error: %v", err)
	}
	go func() {
		if err := tail.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("follower stopped", "error", err.Error())
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.New(st, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting order-indexer", "addr", server.Addr, "node", cfg.NodeWSURL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err.Error())
		os.Exit(1)
	}
}

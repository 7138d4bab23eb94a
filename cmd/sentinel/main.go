// Package main is the entry point for the Sentinel-IDS detection service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinel-ids/internal/alerting"
	"sentinel-ids/internal/api"
	"sentinel-ids/internal/config"
	"sentinel-ids/internal/detect"
	"sentinel-ids/internal/logging"
	"sentinel-ids/internal/metrics"
	"sentinel-ids/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"failed_logins_threshold", cfg.Detection.FailedLoginsThreshold,
		"rapid_requests_per_minute", cfg.Detection.RapidRequestsPerMinute,
		"redis_enabled", cfg.Redis.Enabled,
		"kafka_enabled", cfg.Kafka.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the event store
	logger.Info("connecting to ClickHouse",
		"hosts", cfg.Storage.ClickHouse.Hosts,
		"database", cfg.Storage.ClickHouse.Database,
	)

	chConfig := storage.ClickHouseConfig{
		Hosts:           cfg.Storage.ClickHouse.Hosts,
		Database:        cfg.Storage.ClickHouse.Database,
		Username:        cfg.Storage.ClickHouse.Username,
		Password:        cfg.Storage.ClickHouse.Password,
		MaxOpenConns:    cfg.Storage.ClickHouse.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.ClickHouse.ConnMaxLifetime,
		TLSEnabled:      cfg.Storage.ClickHouse.TLSEnabled,
		DialTimeout:     cfg.Storage.ClickHouse.DialTimeout,
	}

	chClient, err := storage.NewClickHouseClient(chConfig)
	if err != nil {
		logger.Error("failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}

	// Run migrations
	logger.Info("running database migrations")
	migrator := storage.NewMigrator(chClient)
	if err := migrator.Run(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	eventStore := storage.NewEventStore(chClient, cfg.Detection.QueryTimeout)

	// Optional block-intent store
	var blocks alerting.BlockStore
	if cfg.Redis.Enabled {
		blockStore, err := alerting.NewRedisBlockStore(cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		blocks = blockStore
		logger.Info("block-intent store initialized", "addr", cfg.Redis.Addr)
	}

	// Optional alert publisher
	var publisher alerting.Publisher
	if cfg.Kafka.Enabled {
		publisher = alerting.NewKafkaPublisher(cfg.Kafka)
	}

	alerter := alerting.NewAlerter(eventStore, publisher, blocks)
	engine := detect.NewEngine(cfg.Detection, eventStore, alerter)
	aggregator := metrics.NewAggregator(eventStore, cfg.Detection)

	handler := api.NewHandler(engine, alerter, aggregator, chClient)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      api.WithMiddleware(handler.Routes()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting detection server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	cancel()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("publisher close error", "error", err)
		}
	}

	if blocks != nil {
		if err := blocks.Close(); err != nil {
			logger.Error("block store close error", "error", err)
		}
	}

	if err := chClient.Close(); err != nil {
		logger.Error("clickhouse close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// Package main is the entry point for the strategy library control plane.
// It starts the HTTP registry service that manages versioned trading
// artifacts, their deployments into environments and hot swaps between
// them.
//
// The application performs the following initialization sequence:
//  1. Load configuration from config file and environment variables
//  2. Initialize structured logging with zap
//  3. Connect to the relational store and run migrations
//  4. Connect the event bus publisher
//  5. Configure HTTP server with routes and middleware
//  6. Start HTTP server with graceful shutdown support
//
// Graceful shutdown is triggered by SIGINT (Ctrl+C) or SIGTERM signals.
//
// Example usage:
//
//	# Start with default config
//	./registry
//
//	# Start with custom config file
//	./registry --config=/etc/stratweave/config.yaml
//
//	# Start with environment variable overrides
//	export LISTEN_ADDR=:9350
//	export STORE_URL=postgres://db.example.com:5432/stratweave
//	./registry
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/stratweave/internal/config"
	"github.com/piwi3910/stratweave/internal/events"
	"github.com/piwi3910/stratweave/internal/observability"
	"github.com/piwi3910/stratweave/internal/server"
	"github.com/piwi3910/stratweave/internal/storage"
)

// ServiceName is the name of this service.
const ServiceName = "stratweave-registry"

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Fprintf(os.Stdout, "%s version %s\n", ServiceName, server.Version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := observability.InitLogger(cfg.Observability.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Library service starting",
		zap.String("version", server.Version),
		zap.String("service", ServiceName),
		zap.String("environment", cfg.Observability.Environment),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.NewPostgresStore(ctx, cfg.Store.URL, storage.PostgresOptions{
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	}, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	logger.Info("Store connected", zap.Int("max_open_conns", cfg.Store.MaxOpenConns))

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Bus.URL != "" {
		opts, err := events.ParseBusURL(cfg.Bus.URL)
		if err != nil {
			return err
		}
		publisher = events.NewRedisPublisher(opts, events.PublisherConfig{
			MaxAttempts:   cfg.Bus.RetryMaxAttempts,
			BackoffCap:    cfg.Bus.RetryBackoffCap,
			PublishBudget: cfg.Bus.PublishBudget,
		}, logger.Logger)
		logger.Info("Event bus publisher connected", zap.String("url", cfg.Bus.URL))
	} else {
		logger.Warn("No bus URL configured, event publication disabled")
	}

	srv := server.New(cfg, logger.Logger, store, publisher)
	return srv.Start()
}

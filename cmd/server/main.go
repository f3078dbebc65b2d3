// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package main is the entry point for the Herald notification server.
//
// Herald turns content-lifecycle events (work updated, comment posted, kudos
// received, series advanced) into personalized notifications. Subscriptions,
// content filters, quiet hours, per-owner rules, and digest batching decide
// who gets notified, how, and when.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables and config file (Koanf v2)
//  2. Stores: in-memory or BadgerDB persistence
//  3. Delivery manager: in-app, email, and webhook channels
//  4. WebSocket hub: live push to connected clients
//  5. Pipeline: matcher, filters, rule engine, digest batching, dispatcher
//  6. Event intake: in-process Watermill bus, optional NATS JetStream
//  7. HTTP server: management API with JWT authentication
//
// All long-running components run under a suture supervisor tree with three
// layers (pipeline, messaging, API) so a crashing consumer restarts without
// taking the HTTP server down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority
// wins): environment variables, a config.yaml file, and built-in defaults.
// The management API requires:
//   - JWT_SECRET: 32+ character secret for token signing
//   - ADMIN_USERNAME: login username
//   - ADMIN_PASSWORD_HASH: bcrypt hash of the login password
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests and deliveries (10s timeout)
//   - Closes the event bus and the Badger store
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/herald-notify/herald/internal/api"
	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/delivery"
	"github.com/herald-notify/herald/internal/digest"
	"github.com/herald-notify/herald/internal/eventbus"
	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/notify"
	"github.com/herald-notify/herald/internal/store"
	"github.com/herald-notify/herald/internal/supervisor"
	"github.com/herald-notify/herald/internal/supervisor/services"
	ws "github.com/herald-notify/herald/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("store_backend", cfg.Store.Backend).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting Herald")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog compatibility
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Initialize persistence
	var stores *store.Stores
	switch cfg.Store.Backend {
	case "badger":
		db, err := store.OpenBadger(cfg.Store.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open Badger store")
		}
		defer func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing Badger store")
			}
		}()
		stores = store.NewBadgerStores(db)

		// Badger value log GC runs as a supervised loop so a panic inside
		// the GC pass restarts it instead of killing the process.
		gcInterval := cfg.Store.GCInterval
		tree.AddPipelineService(services.NewFuncService("store-gc", func(ctx context.Context) error {
			store.RunGC(ctx, db, gcInterval)
			return ctx.Err()
		}))
		logging.Info().Str("path", cfg.Store.Path).Msg("BadgerDB store initialized")
	default:
		stores = store.NewMemoryStores()
		logging.Warn().Msg("In-memory store selected; notifications will not survive a restart")
	}

	// Outbound channels and live push
	manager := delivery.NewManager(cfg.Delivery)
	hub := ws.NewHub()

	// Notification pipeline
	batcher := digest.NewProcessor(stores, manager, cfg.Digest)
	scheduler := digest.NewScheduler(batcher, cfg.Digest)
	dispatcher := notify.NewDispatcher(stores, manager, hub, cfg.Delivery)
	pipeline := notify.NewService(stores, dispatcher, batcher, cfg.Pipeline)
	sweeper := notify.NewSweeper(stores, dispatcher, cfg.Pipeline)

	// Event intake: the in-process bus always runs; NATS JetStream feeds the
	// same pipeline when cross-service ingestion is enabled.
	bus := eventbus.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	tree.AddPipelineService(services.NewServeService("event-consumer",
		eventbus.NewConsumer(bus, pipeline, eventbus.TopicEvents)))
	tree.AddPipelineService(services.NewServeService("delivery-dispatcher", dispatcher))
	tree.AddPipelineService(services.NewServeService("redelivery-sweeper", sweeper))
	tree.AddPipelineService(services.NewServeService("digest-scheduler", scheduler))

	if cfg.NATS.Enabled {
		subscriber, err := eventbus.NewNATSSubscriber(cfg.NATS, eventbus.NewLoggerAdapter())
		if err != nil {
			logging.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect NATS subscriber")
		}
		tree.AddPipelineService(services.NewServeService("nats-consumer",
			eventbus.NewConsumer(subscriber, pipeline, eventbus.NATSTopic(cfg.NATS))))
		logging.Info().
			Str("url", cfg.NATS.URL).
			Str("stream", cfg.NATS.StreamName).
			Msg("NATS JetStream event intake enabled")
	}

	// Messaging layer services
	tree.AddMessagingService(services.NewServeService("websocket-hub", hub))

	// API layer services
	authenticator := api.NewAuthenticator(cfg.Security)
	handler := api.NewHandler(stores, bus, hub, dispatcher, manager, cfg.API, cfg.WebSocket)
	router := api.NewRouter(handler, authenticator, api.NewChiMiddleware(cfg.Security))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
		logging.Warn().Msg("This should only be used in test environments!")
	}

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Herald stopped gracefully")
}

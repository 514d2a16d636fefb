package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ringlabs/callsync/internal/cache"
	"github.com/ringlabs/callsync/internal/callstore"
	"github.com/ringlabs/callsync/internal/config"
	"github.com/ringlabs/callsync/internal/crmsync"
	"github.com/ringlabs/callsync/internal/database"
	"github.com/ringlabs/callsync/internal/enrichment"
	"github.com/ringlabs/callsync/internal/ingest"
	"github.com/ringlabs/callsync/internal/ledger"
	"github.com/ringlabs/callsync/internal/logging"
	"github.com/ringlabs/callsync/internal/monitoring"
	"github.com/ringlabs/callsync/internal/notify"
	"github.com/ringlabs/callsync/internal/resolver"
	"github.com/ringlabs/callsync/internal/server"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("name", cfg.Server.Name).
		Msg("Starting callsync API server")

	// Initialize database connection
	db, err := database.New(context.Background(), cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	// Initialize Prometheus metrics
	monitoring.Init()

	// Start metrics server if enabled
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort)
	}

	// Redis is optional: without it the dedup fast path and the
	// enrichment trigger queue are skipped, correctness is unaffected.
	var redisCache *cache.Redis
	if cfg.Redis.Enabled {
		redisCache, err = cache.New(context.Background(), cfg.Redis.URL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing without dedup cache")
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	// Wire the pipeline
	sink := notify.NewPGSink(db.Pool)
	ledgerSvc := ledger.NewService(db.Pool)
	resolverSvc := resolver.NewService(db.Pool)
	calls := callstore.NewService(db.Pool)
	crm := crmsync.NewService(db.Pool, &cfg.Sync)

	var verifier ingest.Verifier = ingest.NoopVerifier{}
	if cfg.Webhook.SigningSecret != "" {
		verifier = ingest.NewHMACVerifier(cfg.Webhook.SigningSecret)
	} else {
		log.Warn().Msg("WEBHOOK_SIGNING_SECRET not set, accepting unsigned webhooks")
	}

	controller := ingest.NewController(cfg, ledgerSvc, resolverSvc, calls, crm, redisCache, sink, verifier)
	enricher := enrichment.NewWorker(calls, sink, &cfg.Enrichment, nil)

	srv := server.NewAPIServer(cfg, db, controller, calls, resolverSvc, crm, enricher)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().
		Int("port", port).
		Msg("Prometheus metrics server listening")

	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server error")
	}
}

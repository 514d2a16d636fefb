// Command enrich runs the post-call enrichment worker: it consumes call
// ids from the redis trigger queue and, as a safety net for dropped
// triggers, polls the database for un-enriched completed calls.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ringlabs/callsync/internal/cache"
	"github.com/ringlabs/callsync/internal/callstore"
	"github.com/ringlabs/callsync/internal/config"
	"github.com/ringlabs/callsync/internal/database"
	"github.com/ringlabs/callsync/internal/enrichment"
	"github.com/ringlabs/callsync/internal/logging"
	"github.com/ringlabs/callsync/internal/monitoring"
	"github.com/ringlabs/callsync/internal/notify"
	"github.com/rs/zerolog/log"
)

const dequeueTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Msg("Starting callsync enrichment worker")

	db, err := database.New(context.Background(), cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	monitoring.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := notify.NewPGSink(db.Pool)
	calls := callstore.NewService(db.Pool)
	worker := enrichment.NewWorker(calls, sink, &cfg.Enrichment, nil)

	// Polling scheduler catches calls whose queue trigger was lost
	scheduler := enrichment.NewScheduler(worker, calls, &cfg.Enrichment)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start enrichment scheduler")
	}
	defer scheduler.Stop()

	if cfg.Redis.Enabled {
		redisCache, err := cache.New(ctx, cfg.Redis.URL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running on polling only")
		} else {
			defer redisCache.Close()
			go consumeQueue(ctx, redisCache, worker, cfg.Enrichment.QueueKey)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	cancel()
	log.Info().Msg("Enrichment worker exited")
}

// consumeQueue blocks on the redis trigger list and enriches each call id
// as it arrives. Ineligible calls are expected (an in-progress event can
// race the trigger) and skipped quietly.
func consumeQueue(ctx context.Context, redisCache *cache.Redis, worker *enrichment.Worker, queueKey string) {
	log.Info().Str("queue", queueKey).Msg("Consuming enrichment triggers")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		callID, err := redisCache.DequeueEnrichment(ctx, queueKey, dequeueTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read enrichment queue")
			time.Sleep(time.Second)
			continue
		}
		if callID == uuid.Nil {
			continue
		}

		if _, err := worker.EnrichCall(ctx, callID); err != nil && !errors.Is(err, enrichment.ErrNotEligible) {
			log.Warn().Err(err).Str("call_record_id", callID.String()).Msg("Enrichment failed")
		}
	}
}

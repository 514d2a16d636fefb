package enrichment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ringlabs/callsync/internal/callstore"
	"github.com/ringlabs/callsync/internal/config"
)

// Scheduler polls for completed, transcript-bearing calls that have not
// been enriched yet and runs the worker over them in batches. It is the
// safety net behind the redis trigger queue: a dropped trigger only
// delays enrichment until the next poll.
type Scheduler struct {
	worker  *Worker
	calls   *callstore.Service
	cfg     *config.EnrichmentConfig
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewScheduler creates a polling scheduler over the given worker
func NewScheduler(worker *Worker, calls *callstore.Service, cfg *config.EnrichmentConfig) *Scheduler {
	return &Scheduler{
		worker: worker,
		calls:  calls,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start begins the polling loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	log.Info().Dur("interval", s.cfg.PollInterval).Msg("Enrichment scheduler started")
	return nil
}

// Stop stops the polling loop and waits for an in-flight batch
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	log.Info().Msg("Enrichment scheduler stopped")
}

// IsRunning reports whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.runBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runBatch(ctx)
		}
	}
}

// runBatch enriches one batch of pending calls. Per-call failures are
// logged and skipped; the row stays un-enriched and the next poll
// retries it.
func (s *Scheduler) runBatch(ctx context.Context) {
	ids, err := s.calls.ListUnenriched(ctx, s.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list calls pending enrichment")
		return
	}
	if len(ids) == 0 {
		return
	}

	enriched := 0
	for _, id := range ids {
		if _, err := s.worker.EnrichCall(ctx, id); err != nil {
			if err != ErrNotEligible {
				log.Warn().Err(err).Str("call_record_id", id.String()).Msg("Enrichment failed")
			}
			continue
		}
		enriched++
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	log.Info().Int("pending", len(ids)).Int("enriched", enriched).Msg("Enrichment batch complete")
}

// Package cache wraps the redis client used for the non-authoritative
// fast paths: the already-processed event cache and the enrichment
// trigger queue. Postgres remains the source of truth; every operation
// here is safe to lose.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis wraps a redis client
type Redis struct {
	Client *redis.Client
}

// New creates a redis client from a URL and validates connectivity
func New(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info().Msg("Redis connection established")
	return &Redis{Client: client}, nil
}

// Close closes the underlying client
func (r *Redis) Close() error {
	return r.Client.Close()
}

func processedKey(externalEventID string) string {
	return "callsync:processed:" + externalEventID
}

// IsEventProcessed checks the already-processed fast path. Fails open:
// any redis error reads as a miss so the ledger decides.
func (r *Redis) IsEventProcessed(ctx context.Context, externalEventID string) bool {
	ok, err := r.Client.Exists(ctx, processedKey(externalEventID)).Result()
	if err != nil {
		log.Debug().Err(err).Msg("Dedup cache lookup failed, falling through to ledger")
		return false
	}
	return ok > 0
}

// MarkEventProcessed records an event id on the fast path with a TTL.
// Best effort only.
func (r *Redis) MarkEventProcessed(ctx context.Context, externalEventID string, ttl time.Duration) {
	if err := r.Client.Set(ctx, processedKey(externalEventID), 1, ttl).Err(); err != nil {
		log.Debug().Err(err).Msg("Failed to populate dedup cache")
	}
}

// EnqueueEnrichment pushes a call id onto the enrichment trigger queue.
// Best effort: the polling scheduler picks up anything the queue drops.
func (r *Redis) EnqueueEnrichment(ctx context.Context, queueKey string, callID uuid.UUID) {
	if err := r.Client.LPush(ctx, queueKey, callID.String()).Err(); err != nil {
		log.Warn().Err(err).Str("call_record_id", callID.String()).Msg("Failed to enqueue enrichment trigger")
	}
}

// DequeueEnrichment blocks for up to timeout waiting for a call id on the
// enrichment queue. Returns uuid.Nil with no error on timeout.
func (r *Redis) DequeueEnrichment(ctx context.Context, queueKey string, timeout time.Duration) (uuid.UUID, error) {
	vals, err := r.Client.BRPop(ctx, timeout, queueKey).Result()
	if err != nil {
		if err == redis.Nil {
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	if len(vals) != 2 {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(vals[1])
	if err != nil {
		log.Warn().Str("value", vals[1]).Msg("Discarding malformed enrichment trigger")
		return uuid.Nil, nil
	}
	return id, nil
}

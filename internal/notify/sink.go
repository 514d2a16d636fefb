// Package notify delivers structured audit events to the notification
// sink. The sink is an external collaborator from the pipeline's point of
// view: delivery is wrapped in a circuit breaker and a failure never
// propagates to the caller.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ringlabs/callsync/internal/models"
	"github.com/ringlabs/callsync/internal/monitoring"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Sink accepts structured audit records
type Sink interface {
	Emit(ctx context.Context, event models.AuditEvent)
}

// PGSink persists audit events to the audit_events table behind a
// circuit breaker, degrading to a log line when the breaker is open or
// the write fails.
type PGSink struct {
	db      *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker
}

// NewPGSink creates a sink backed by Postgres
func NewPGSink(db *pgxpool.Pool) *PGSink {
	settings := gobreaker.Settings{
		Name:        "audit-sink",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Audit sink circuit breaker state changed")
			monitoring.SetSinkBreakerState(breakerStateValue(to))
		},
	}

	return &PGSink{
		db:      db,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}

// Emit delivers one audit event. Never returns an error: a failed or
// rejected delivery is logged and dropped.
func (s *PGSink) Emit(ctx context.Context, event models.AuditEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.insert(ctx, event)
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("event_type", event.EventType).
			Str("message", event.Message).
			Msg("Audit event dropped")
	}
}

func (s *PGSink) insert(ctx context.Context, event models.AuditEvent) error {
	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_events (id, level, event_type, message, call_record_id, external_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.Level, event.EventType, event.Message, event.CallRecordID, event.ExternalID, metadata, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// NopSink discards all events. Used in tests.
type NopSink struct{}

// Emit implements Sink
func (NopSink) Emit(context.Context, models.AuditEvent) {}

// Package ledger records every received provider event by its external
// id and gates reprocessing. The unique key on external_event_id is the
// pipeline's sole concurrency-control primitive: concurrent duplicate
// deliveries race to a single insert winner and the loser observes the
// existing row.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ringlabs/callsync/internal/models"
)

// Service errors
var (
	ErrEntryNotFound = errors.New("webhook log entry not found")
)

// Status describes how the caller should treat an inbound event
type Status string

const (
	// StatusNew means this event id has never been seen; process it.
	StatusNew Status = "new"
	// StatusAlreadyProcessed means a prior delivery completed; the caller
	// must short-circuit and return success without reprocessing.
	StatusAlreadyProcessed Status = "already-processed"
	// StatusRetry means a prior delivery was recorded and failed with an
	// error; the caller reprocesses.
	StatusRetry Status = "retry"
)

// Service handles idempotency ledger operations
type Service struct {
	db *pgxpool.Pool
}

// NewService creates a new ledger service
func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// RecordOrGetStatus inserts an entry for the external event id or, when
// one already exists, reports how the caller should proceed. Insert races
// between concurrent duplicate deliveries are settled by the unique
// constraint: the loser re-reads the winner's row.
func (s *Service) RecordOrGetStatus(ctx context.Context, externalEventID, eventType string, payload []byte) (*models.WebhookLogEntry, Status, error) {
	entry := models.WebhookLogEntry{
		ID:              uuid.New(),
		ExternalEventID: externalEventID,
		EventType:       eventType,
		Payload:         payload,
		ReceivedAt:      time.Now(),
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO webhook_log_entries (id, external_event_id, event_type, payload, received_at, processed)
		VALUES ($1, $2, $3, $4, $5, false)
		ON CONFLICT (external_event_id) DO NOTHING
	`, entry.ID, entry.ExternalEventID, entry.EventType, entry.Payload, entry.ReceivedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to insert webhook log entry: %w", err)
	}

	if tag.RowsAffected() == 1 {
		return &entry, StatusNew, nil
	}

	// Conflict: some delivery got here first. Read its state.
	existing, err := s.GetByExternalID(ctx, externalEventID)
	if err != nil {
		return nil, "", err
	}

	if existing.Processed {
		return existing, StatusAlreadyProcessed, nil
	}
	if existing.ProcessingError != nil {
		return existing, StatusRetry, nil
	}
	// Unprocessed with no recorded error: the winner is still in flight.
	// The loser must not run the pipeline a second time.
	return existing, StatusAlreadyProcessed, nil
}

// GetByExternalID fetches a ledger entry by its external event id
func (s *Service) GetByExternalID(ctx context.Context, externalEventID string) (*models.WebhookLogEntry, error) {
	var entry models.WebhookLogEntry
	err := s.db.QueryRow(ctx, `
		SELECT id, external_event_id, event_type, payload, received_at, processed, processing_error, processed_at
		FROM webhook_log_entries
		WHERE external_event_id = $1
	`, externalEventID).Scan(
		&entry.ID, &entry.ExternalEventID, &entry.EventType, &entry.Payload,
		&entry.ReceivedAt, &entry.Processed, &entry.ProcessingError, &entry.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get webhook log entry: %w", err)
	}
	return &entry, nil
}

// MarkProcessed transitions an entry to processed=true and clears any
// prior error. The transition is monotonic: nothing ever sets processed
// back to false.
func (s *Service) MarkProcessed(ctx context.Context, entryID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE webhook_log_entries
		SET processed = true, processing_error = NULL, processed_at = NOW()
		WHERE id = $1
	`, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark entry processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// MarkFailed records a processing error for a future retry. It never
// clears a prior processed=true: the WHERE clause guards the monotonic
// transition in SQL, not application code.
func (s *Service) MarkFailed(ctx context.Context, entryID uuid.UUID, procErr error) error {
	msg := procErr.Error()
	_, err := s.db.Exec(ctx, `
		UPDATE webhook_log_entries
		SET processing_error = $2
		WHERE id = $1 AND processed = false
	`, entryID, msg)
	if err != nil {
		return fmt.Errorf("failed to mark entry failed: %w", err)
	}
	return nil
}

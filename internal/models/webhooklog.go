package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookLogEntry records one received provider event. The external event
// id is unique: the row doubles as the idempotency ledger entry for
// at-least-once delivery.
type WebhookLogEntry struct {
	ID              uuid.UUID `json:"id" db:"id"`
	ExternalEventID string    `json:"external_event_id" db:"external_event_id"`
	EventType       string    `json:"event_type" db:"event_type"`
	Payload         []byte    `json:"-" db:"payload"`
	ReceivedAt      time.Time `json:"received_at" db:"received_at"`
	Processed       bool      `json:"processed" db:"processed"`
	ProcessingError *string   `json:"processing_error,omitempty" db:"processing_error"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is a structured record delivered to the notification/audit
// sink: what happened, to which call, with free-form metadata.
type AuditEvent struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	Level        string            `json:"level" db:"level"`
	EventType    string            `json:"event_type" db:"event_type"`
	Message      string            `json:"message" db:"message"`
	CallRecordID *uuid.UUID        `json:"call_record_id,omitempty" db:"call_record_id"`
	ExternalID   *string           `json:"external_id,omitempty" db:"external_id"`
	Metadata     map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

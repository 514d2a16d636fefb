package models

import (
	"time"

	"github.com/google/uuid"
)

// CallDirection represents the direction of a call
type CallDirection string

const (
	DirectionInbound  CallDirection = "inbound"
	DirectionOutbound CallDirection = "outbound"
)

// CallOutcome represents the provider-reported outcome of a call
type CallOutcome string

const (
	OutcomeAnswered  CallOutcome = "answered"
	OutcomeMissed    CallOutcome = "missed"
	OutcomeVoicemail CallOutcome = "voicemail"
	OutcomeBusy      CallOutcome = "busy"
	OutcomeFailed    CallOutcome = "failed"
	OutcomeNoAnswer  CallOutcome = "no_answer"
	OutcomeCancelled CallOutcome = "cancelled"
)

// ValidOutcome reports whether s is a known call outcome
func ValidOutcome(s string) bool {
	switch CallOutcome(s) {
	case OutcomeAnswered, OutcomeMissed, OutcomeVoicemail, OutcomeBusy,
		OutcomeFailed, OutcomeNoAnswer, OutcomeCancelled:
		return true
	}
	return false
}

// CallStatus is the lifecycle status derived from the outcome
type CallStatus string

const (
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
)

// StatusForOutcome derives the lifecycle status from an outcome. An event
// without an outcome describes a call that is still in flight.
func StatusForOutcome(outcome CallOutcome) CallStatus {
	if outcome == "" {
		return CallStatusInProgress
	}
	return CallStatusCompleted
}

// IsTerminal reports whether the status allows post-call enrichment
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted
}

// LinkMethod records how a call was linked to an account
type LinkMethod string

const (
	LinkMethodContactMapping LinkMethod = "contact_mapping"
	LinkMethodPhoneMatch     LinkMethod = "phone_match"
	LinkMethodNone           LinkMethod = "none"
)

// CallRecord is the canonical representation of one call, keyed for upsert
// on the provider's external call id.
//
// Invariant: Transcript and RecordingURL are non-nil only when HasConsent
// is true. The store enforces this at write time regardless of payload.
type CallRecord struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	ExternalCallID   string        `json:"external_call_id" db:"external_call_id"`
	Direction        CallDirection `json:"direction" db:"direction"`
	Outcome          CallOutcome   `json:"outcome,omitempty" db:"outcome"`
	Status           CallStatus    `json:"status" db:"status"`
	FromNumber       string        `json:"from_number" db:"from_number"`
	FromNumberNorm   string        `json:"from_number_normalized" db:"from_number_normalized"`
	ToNumber         string        `json:"to_number" db:"to_number"`
	ToNumberNorm     string        `json:"to_number_normalized" db:"to_number_normalized"`
	StartedAt        *time.Time    `json:"started_at,omitempty" db:"started_at"`
	AnsweredAt       *time.Time    `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt          *time.Time    `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds  int           `json:"duration_seconds" db:"duration_seconds"`
	AccountID        *uuid.UUID    `json:"account_id,omitempty" db:"account_id"`
	LinkMethod       LinkMethod    `json:"link_method" db:"link_method"`
	HasConsent       bool          `json:"has_consent" db:"has_consent"`
	Transcript       *string       `json:"transcript,omitempty" db:"transcript"`
	RecordingURL     *string       `json:"recording_url,omitempty" db:"recording_url"`
	Summary          *string       `json:"summary,omitempty" db:"summary"`
	Tags             []string      `json:"tags,omitempty" db:"tags"`
	NextAction       *string       `json:"next_action,omitempty" db:"next_action"`
	EnrichedAt       *time.Time    `json:"enriched_at,omitempty" db:"enriched_at"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

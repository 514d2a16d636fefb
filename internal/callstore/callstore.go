// Package callstore owns the canonical call record: upsert keyed on the
// provider's external call id, with consent-based redaction applied at
// write time.
package callstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ringlabs/callsync/internal/models"
	"github.com/ringlabs/callsync/internal/phone"
)

// Service errors
var (
	ErrCallNotFound = errors.New("call record not found")
)

// CallEvent carries the call-level fields of one provider event
type CallEvent struct {
	ExternalCallID  string     `json:"call_id" binding:"required"`
	ContactID       *string    `json:"contact_id,omitempty"`
	Direction       string     `json:"direction"`
	Outcome         string     `json:"outcome,omitempty"`
	FromNumber      string     `json:"from_number"`
	ToNumber        string     `json:"to_number"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	HasConsent      bool       `json:"has_consent"`
	Transcript      *string    `json:"transcript,omitempty"`
	RecordingURL    *string    `json:"recording_url,omitempty"`
}

// Service handles call record persistence
type Service struct {
	db *pgxpool.Pool
}

// NewService creates a new call store service
func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// Project derives the stored row from one event. The whole record is
// re-derived from the incoming event alone: consent gating never
// merge-preserves previously consented fields from a now-non-consenting
// event.
func Project(ev CallEvent, accountID *uuid.UUID, method models.LinkMethod) models.CallRecord {
	rec := models.CallRecord{
		ExternalCallID:  ev.ExternalCallID,
		Direction:       models.CallDirection(ev.Direction),
		Outcome:         models.CallOutcome(ev.Outcome),
		Status:          models.StatusForOutcome(models.CallOutcome(ev.Outcome)),
		FromNumber:      ev.FromNumber,
		FromNumberNorm:  phone.Normalize(ev.FromNumber),
		ToNumber:        ev.ToNumber,
		ToNumberNorm:    phone.Normalize(ev.ToNumber),
		StartedAt:       ev.StartedAt,
		AnsweredAt:      ev.AnsweredAt,
		EndedAt:         ev.EndedAt,
		DurationSeconds: ev.DurationSeconds,
		AccountID:       accountID,
		LinkMethod:      method,
		HasConsent:      ev.HasConsent,
	}

	// Consent gating: sensitive content is stored only when this event
	// affirmatively carries consent.
	if ev.HasConsent {
		rec.Transcript = ev.Transcript
		rec.RecordingURL = ev.RecordingURL
	}

	return rec
}

// Upsert writes the redacted projection of an event, keyed on the
// external call id. Collisions overwrite the row with the new event's
// fields: simple last-write-wins, no event-type-aware merge. An out-of-
// order delivery (an earlier lifecycle event arriving after a later one)
// therefore regresses fields such as ended_at.
//
// Enrichment columns (summary, tags, next_action, enriched_at) are not in
// the update set: ingestion never clobbers the enrichment worker's output.
func (s *Service) Upsert(ctx context.Context, ev CallEvent, accountID *uuid.UUID, method models.LinkMethod) (*models.CallRecord, error) {
	rec := Project(ev, accountID, method)
	rec.ID = uuid.New()
	now := time.Now()

	err := s.db.QueryRow(ctx, `
		INSERT INTO call_records (
			id, external_call_id, direction, outcome, status,
			from_number, from_number_normalized, to_number, to_number_normalized,
			started_at, answered_at, ended_at, duration_seconds,
			account_id, link_method, has_consent, transcript, recording_url,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
		ON CONFLICT (external_call_id) DO UPDATE SET
			direction = EXCLUDED.direction,
			outcome = EXCLUDED.outcome,
			status = EXCLUDED.status,
			from_number = EXCLUDED.from_number,
			from_number_normalized = EXCLUDED.from_number_normalized,
			to_number = EXCLUDED.to_number,
			to_number_normalized = EXCLUDED.to_number_normalized,
			started_at = EXCLUDED.started_at,
			answered_at = EXCLUDED.answered_at,
			ended_at = EXCLUDED.ended_at,
			duration_seconds = EXCLUDED.duration_seconds,
			account_id = EXCLUDED.account_id,
			link_method = EXCLUDED.link_method,
			has_consent = EXCLUDED.has_consent,
			transcript = EXCLUDED.transcript,
			recording_url = EXCLUDED.recording_url,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`,
		rec.ID, rec.ExternalCallID, rec.Direction, nullIfEmpty(string(rec.Outcome)), rec.Status,
		rec.FromNumber, rec.FromNumberNorm, rec.ToNumber, rec.ToNumberNorm,
		rec.StartedAt, rec.AnsweredAt, rec.EndedAt, rec.DurationSeconds,
		rec.AccountID, rec.LinkMethod, rec.HasConsent, rec.Transcript, rec.RecordingURL,
		now,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert call record: %w", err)
	}
	rec.UpdatedAt = now

	return &rec, nil
}

// GetByID fetches a call record by internal id
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.CallRecord, error) {
	return s.get(ctx, `WHERE id = $1`, id)
}

// GetByExternalID fetches a call record by the provider's call id
func (s *Service) GetByExternalID(ctx context.Context, externalCallID string) (*models.CallRecord, error) {
	return s.get(ctx, `WHERE external_call_id = $1`, externalCallID)
}

func (s *Service) get(ctx context.Context, where string, arg any) (*models.CallRecord, error) {
	var rec models.CallRecord
	var outcome *string
	err := s.db.QueryRow(ctx, `
		SELECT id, external_call_id, direction, outcome, status,
		       from_number, from_number_normalized, to_number, to_number_normalized,
		       started_at, answered_at, ended_at, duration_seconds,
		       account_id, link_method, has_consent, transcript, recording_url,
		       summary, tags, next_action, enriched_at, created_at, updated_at
		FROM call_records
	`+where, arg).Scan(
		&rec.ID, &rec.ExternalCallID, &rec.Direction, &outcome, &rec.Status,
		&rec.FromNumber, &rec.FromNumberNorm, &rec.ToNumber, &rec.ToNumberNorm,
		&rec.StartedAt, &rec.AnsweredAt, &rec.EndedAt, &rec.DurationSeconds,
		&rec.AccountID, &rec.LinkMethod, &rec.HasConsent, &rec.Transcript, &rec.RecordingURL,
		&rec.Summary, &rec.Tags, &rec.NextAction, &rec.EnrichedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}
	if outcome != nil {
		rec.Outcome = models.CallOutcome(*outcome)
	}
	return &rec, nil
}

// SetEnrichment fills enrichment fields. Summary and next action are only
// written when provided; tags are always replaced (cheap to recompute and
// order-independent). Stamps enriched_at for run tracking.
func (s *Service) SetEnrichment(ctx context.Context, id uuid.UUID, summary *string, tags []string, nextAction *string) error {
	if tags == nil {
		// nil encodes as SQL NULL; the column is NOT NULL
		tags = []string{}
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE call_records
		SET summary = COALESCE(summary, $2),
		    tags = $3,
		    next_action = COALESCE(next_action, $4),
		    enriched_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`, id, summary, tags, nextAction)
	if err != nil {
		return fmt.Errorf("failed to set enrichment fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCallNotFound
	}
	return nil
}

// ListUnenriched returns terminal calls with transcript or summary that
// have not been enriched yet, oldest first. Used by the polling scheduler.
func (s *Service) ListUnenriched(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM call_records
		WHERE status = $1
		  AND enriched_at IS NULL
		  AND (transcript IS NOT NULL OR summary IS NOT NULL)
		ORDER BY updated_at
		LIMIT $2
	`, models.CallStatusCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unenriched calls: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan call id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

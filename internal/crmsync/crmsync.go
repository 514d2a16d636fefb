// Package crmsync applies one recorded call to the CRM: deal touches,
// contact attempt counters and an activity row per open deal. It runs
// after the call record is durable and its failures never propagate to
// the webhook response.
package crmsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/ringlabs/callsync/internal/config"
	"github.com/ringlabs/callsync/internal/logging"
	"github.com/ringlabs/callsync/internal/models"
	"github.com/ringlabs/callsync/internal/monitoring"
)

var log = logging.NewLogger("crmsync")

// ErrContactNotFound is returned when a contact lookup matches no row
var ErrContactNotFound = errors.New("contact not found")

const nextActionCallBack = "Call back"

// Report summarizes what one sync pass changed
type Report struct {
	DealsTouched      int `json:"deals_touched"`
	ActivitiesCreated int `json:"activities_created"`
	ContactsUpdated   int `json:"contacts_updated"`
}

// Service cascades call outcomes into deals, contacts and activities
type Service struct {
	db  *pgxpool.Pool
	cfg *config.SyncConfig
}

// NewService creates a new CRM sync service
func NewService(db *pgxpool.Pool, cfg *config.SyncConfig) *Service {
	return &Service{db: db, cfg: cfg}
}

// SyncCall updates every non-terminal deal of the account for one call.
// All rows are written in a single transaction so a partial cascade never
// becomes visible. Closed deals are skipped entirely.
func (s *Service) SyncCall(ctx context.Context, accountID uuid.UUID, callRecordID uuid.UUID, outcome models.CallOutcome, callTime time.Time, durationSeconds int) (*Report, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, contact_id
		FROM deals
		WHERE account_id = $1 AND stage NOT IN ($2, $3)
		FOR UPDATE
	`, accountID, models.DealStageClosedWon, models.DealStageClosedLost)
	if err != nil {
		return nil, fmt.Errorf("failed to load open deals: %w", err)
	}

	type openDeal struct {
		id        uuid.UUID
		contactID *uuid.UUID
	}
	var deals []openDeal
	for rows.Next() {
		var d openDeal
		if err := rows.Scan(&d.id, &d.contactID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read deals: %w", err)
	}

	report := &Report{}
	answered := outcome == models.OutcomeAnswered
	nextActionAt := s.nextCallbackTime(callTime)
	minutes := decimal.NewFromInt(int64(durationSeconds)).Div(decimal.NewFromInt(60)).Round(2)

	// contacts can back multiple deals; count each once
	touchedContacts := make(map[uuid.UUID]bool)

	for _, d := range deals {
		if answered {
			_, err = tx.Exec(ctx, `
				UPDATE deals SET last_touch_at = $2, updated_at = NOW()
				WHERE id = $1
			`, d.id, callTime)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE deals
				SET last_touch_at = $2, next_action = $3, next_action_at = $4, updated_at = NOW()
				WHERE id = $1
			`, d.id, callTime, nextActionCallBack, nextActionAt)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to touch deal %s: %w", d.id, err)
		}
		report.DealsTouched++

		if d.contactID != nil && !touchedContacts[*d.contactID] {
			if err := s.touchContact(ctx, tx, *d.contactID, answered, callTime); err != nil {
				return nil, err
			}
			touchedContacts[*d.contactID] = true
			report.ContactsUpdated++
		}

		var activityNextAction *string
		if !answered {
			na := nextActionCallBack
			activityNextAction = &na
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO sales_activities (id, deal_id, account_id, call_record_id, outcome, duration_minutes, next_action, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		`, uuid.New(), d.id, accountID, callRecordID, outcome, minutes, activityNextAction)
		if err != nil {
			return nil, fmt.Errorf("failed to insert sales activity: %w", err)
		}
		report.ActivitiesCreated++
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit CRM sync: %w", err)
	}

	monitoring.RecordSyncReport(report.DealsTouched, report.ActivitiesCreated)
	log.Debug().
		Str("account_id", accountID.String()).
		Str("outcome", string(outcome)).
		Int("deals_touched", report.DealsTouched).
		Int("contacts_updated", report.ContactsUpdated).
		Msg("CRM sync applied")

	return report, nil
}

// touchContact bumps attempt counters for one contact. Answered calls
// reset the no-contact streak; anything else increments it up to the
// configured cap and schedules a next-day follow-up.
func (s *Service) touchContact(ctx context.Context, tx pgx.Tx, contactID uuid.UUID, answered bool, callTime time.Time) error {
	var err error
	if answered {
		_, err = tx.Exec(ctx, `
			UPDATE contacts
			SET total_call_attempts = total_call_attempts + 1,
			    no_contact_streak = 0,
			    last_contacted_at = $2,
			    updated_at = NOW()
			WHERE id = $1
		`, contactID, callTime)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE contacts
			SET total_call_attempts = total_call_attempts + 1,
			    no_contact_streak = LEAST(no_contact_streak + 1, $2),
			    follow_up_at = $3,
			    updated_at = NOW()
			WHERE id = $1
		`, contactID, s.cfg.MaxNoContactStreak, callTime.AddDate(0, 0, 1))
	}
	if err != nil {
		return fmt.Errorf("failed to update contact %s: %w", contactID, err)
	}
	return nil
}

// ListDealsForAccount returns all deals of an account, newest first
func (s *Service) ListDealsForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Deal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, contact_id, title, stage, value,
		       next_action, next_action_at, last_touch_at, created_at, updated_at
		FROM deals
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		var d models.Deal
		if err := rows.Scan(&d.ID, &d.AccountID, &d.ContactID, &d.Title, &d.Stage, &d.Value,
			&d.NextAction, &d.NextActionAt, &d.LastTouchAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// ListActivitiesForCall returns the sales activities one call produced
func (s *Service) ListActivitiesForCall(ctx context.Context, callRecordID uuid.UUID) ([]models.SalesActivity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, deal_id, account_id, call_record_id, outcome, duration_minutes, next_action, created_at
		FROM sales_activities
		WHERE call_record_id = $1
		ORDER BY created_at
	`, callRecordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales activities: %w", err)
	}
	defer rows.Close()

	var activities []models.SalesActivity
	for rows.Next() {
		var a models.SalesActivity
		if err := rows.Scan(&a.ID, &a.DealID, &a.AccountID, &a.CallRecordID, &a.Outcome,
			&a.DurationMinutes, &a.NextAction, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sales activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// GetContact fetches a contact by id
func (s *Service) GetContact(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	var c models.Contact
	err := s.db.QueryRow(ctx, `
		SELECT id, account_id, name, phone, total_call_attempts, no_contact_streak,
		       last_contacted_at, follow_up_at, created_at, updated_at
		FROM contacts
		WHERE id = $1
	`, id).Scan(&c.ID, &c.AccountID, &c.Name, &c.Phone, &c.TotalCallAttempts, &c.NoContactStreak,
		&c.LastContactedAt, &c.FollowUpAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return &c, nil
}

// nextCallbackTime returns the configured callback hour on the day after
// the call, in the call's location.
func (s *Service) nextCallbackTime(callTime time.Time) time.Time {
	next := callTime.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), s.cfg.CallbackHour, 0, 0, 0, callTime.Location())
}

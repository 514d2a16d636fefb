package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the business entity (account/site) calls are linked to.
// Phone columns may hold historical, unnormalized values.
type Account struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	PrimaryPhone *string   `json:"primary_phone,omitempty" db:"primary_phone"`
	AltPhone     *string   `json:"alt_phone,omitempty" db:"alt_phone"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DealStage represents the pipeline stage of a deal
type DealStage string

const (
	DealStageLead        DealStage = "lead"
	DealStageQualified   DealStage = "qualified"
	DealStageProposal    DealStage = "proposal"
	DealStageNegotiation DealStage = "negotiation"
	DealStageClosedWon   DealStage = "closed_won"
	DealStageClosedLost  DealStage = "closed_lost"
)

// IsTerminal reports whether the stage is closed. Call sync never mutates
// a deal in a terminal stage.
func (s DealStage) IsTerminal() bool {
	return s == DealStageClosedWon || s == DealStageClosedLost
}

// Deal is a CRM opportunity owned by an account
type Deal struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	AccountID    uuid.UUID       `json:"account_id" db:"account_id"`
	ContactID    *uuid.UUID      `json:"contact_id,omitempty" db:"contact_id"`
	Title        string          `json:"title" db:"title"`
	Stage        DealStage       `json:"stage" db:"stage"`
	Value        decimal.Decimal `json:"value" db:"value"`
	NextAction   *string         `json:"next_action,omitempty" db:"next_action"`
	NextActionAt *time.Time      `json:"next_action_at,omitempty" db:"next_action_at"`
	LastTouchAt  *time.Time      `json:"last_touch_at,omitempty" db:"last_touch_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Contact is a CRM person attached to deals
type Contact struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	AccountID         uuid.UUID  `json:"account_id" db:"account_id"`
	Name              string     `json:"name" db:"name"`
	Phone             *string    `json:"phone,omitempty" db:"phone"`
	TotalCallAttempts int        `json:"total_call_attempts" db:"total_call_attempts"`
	NoContactStreak   int        `json:"no_contact_streak" db:"no_contact_streak"`
	LastContactedAt   *time.Time `json:"last_contacted_at,omitempty" db:"last_contacted_at"`
	FollowUpAt        *time.Time `json:"follow_up_at,omitempty" db:"follow_up_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// SalesActivity is an append-only record of a call's effect on a deal
type SalesActivity struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	DealID          uuid.UUID       `json:"deal_id" db:"deal_id"`
	AccountID       uuid.UUID       `json:"account_id" db:"account_id"`
	CallRecordID    uuid.UUID       `json:"call_record_id" db:"call_record_id"`
	Outcome         CallOutcome     `json:"outcome" db:"outcome"`
	DurationMinutes decimal.Decimal `json:"duration_minutes" db:"duration_minutes"`
	NextAction      *string         `json:"next_action,omitempty" db:"next_action"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

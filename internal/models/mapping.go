package models

import (
	"time"

	"github.com/google/uuid"
)

// MappingSource records how a contact mapping came to exist
type MappingSource string

const (
	// MappingSourceLearned is set when the resolver caches a phone match
	MappingSourceLearned MappingSource = "learned"
	// MappingSourceManual is set by an explicit operator override
	MappingSourceManual MappingSource = "manual"
)

// ContactMapping associates a provider contact identifier with an account.
// Unique per provider contact id. Lookups always hit this table before
// falling back to phone matching, so a manual row wins over auto-learning.
type ContactMapping struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	ProviderContactID string        `json:"provider_contact_id" db:"provider_contact_id"`
	AccountID         uuid.UUID     `json:"account_id" db:"account_id"`
	Source            MappingSource `json:"source" db:"source"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

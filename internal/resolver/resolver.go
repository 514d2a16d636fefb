// Package resolver finds the owning account for an inbound call via a
// priority-ordered matching strategy: explicit contact mapping first,
// phone match second, unlinked last.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ringlabs/callsync/internal/models"
	"github.com/ringlabs/callsync/internal/monitoring"
	"github.com/ringlabs/callsync/internal/phone"
	"github.com/rs/zerolog/log"
)

// Service errors
var (
	ErrMappingNotFound = errors.New("contact mapping not found")
	ErrAccountNotFound = errors.New("account not found")
)

// Resolution is the outcome of resolving an event to an account
type Resolution struct {
	AccountID *uuid.UUID
	Method    models.LinkMethod
}

// Service handles entity resolution
type Service struct {
	db *pgxpool.Pool
}

// NewService creates a new resolver service
func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// Resolve finds the account owning a call. Priority order, first match
// wins:
//  1. An existing contact mapping for the provider contact id.
//  2. An exact phone match against account phone columns, tried with both
//     the normalized and the raw cleaned form (historical rows may be
//     stored unnormalized).
//  3. No match: the call is still recorded, unlinked.
//
// When step 2 hits and the event carried a contact id, a mapping is
// learned so the next event from that contact resolves in step 1.
func (s *Service) Resolve(ctx context.Context, providerContactID *string, fromNumber string) (Resolution, error) {
	if providerContactID != nil && *providerContactID != "" {
		mapping, err := s.GetMapping(ctx, *providerContactID)
		if err == nil {
			monitoring.RecordResolution(string(models.LinkMethodContactMapping))
			return Resolution{AccountID: &mapping.AccountID, Method: models.LinkMethodContactMapping}, nil
		}
		if !errors.Is(err, ErrMappingNotFound) {
			return Resolution{Method: models.LinkMethodNone}, err
		}
	}

	normalized := phone.Normalize(fromNumber)
	accountID, err := s.findAccountByPhone(ctx, normalized, fromNumber)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			monitoring.RecordResolution(string(models.LinkMethodNone))
			return Resolution{Method: models.LinkMethodNone}, nil
		}
		return Resolution{Method: models.LinkMethodNone}, err
	}

	if providerContactID != nil && *providerContactID != "" {
		s.learnMapping(ctx, *providerContactID, accountID)
	}

	monitoring.RecordResolution(string(models.LinkMethodPhoneMatch))
	return Resolution{AccountID: &accountID, Method: models.LinkMethodPhoneMatch}, nil
}

// GetAccount fetches an account by id
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var acct models.Account
	err := s.db.QueryRow(ctx, `
		SELECT id, name, primary_phone, alt_phone, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id).Scan(&acct.ID, &acct.Name, &acct.PrimaryPhone, &acct.AltPhone, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

// GetMapping fetches a contact mapping by provider contact id
func (s *Service) GetMapping(ctx context.Context, providerContactID string) (*models.ContactMapping, error) {
	var m models.ContactMapping
	err := s.db.QueryRow(ctx, `
		SELECT id, provider_contact_id, account_id, source, created_at, updated_at
		FROM contact_mappings
		WHERE provider_contact_id = $1
	`, providerContactID).Scan(&m.ID, &m.ProviderContactID, &m.AccountID, &m.Source, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get contact mapping: %w", err)
	}
	return &m, nil
}

// findAccountByPhone matches the caller number against account phone
// columns, normalized form first, raw cleaned form as fallback.
func (s *Service) findAccountByPhone(ctx context.Context, normalized, raw string) (uuid.UUID, error) {
	if normalized == "" && raw == "" {
		return uuid.Nil, ErrAccountNotFound
	}

	var accountID uuid.UUID
	err := s.db.QueryRow(ctx, `
		SELECT id FROM accounts
		WHERE primary_phone IN ($1, $2) OR alt_phone IN ($1, $2)
		ORDER BY created_at
		LIMIT 1
	`, normalized, raw).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrAccountNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to match account by phone: %w", err)
	}
	return accountID, nil
}

// learnMapping caches a phone-match result as a contact mapping. The
// insert never clobbers an existing row, so a manual override always
// survives auto-learning. Best effort: a failure only costs the O(1)
// lookup on the next event.
func (s *Service) learnMapping(ctx context.Context, providerContactID string, accountID uuid.UUID) {
	now := time.Now()
	_, err := s.db.Exec(ctx, `
		INSERT INTO contact_mappings (id, provider_contact_id, account_id, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (provider_contact_id) DO NOTHING
	`, uuid.New(), providerContactID, accountID, models.MappingSourceLearned, now)
	if err != nil {
		log.Warn().
			Err(err).
			Str("provider_contact_id", providerContactID).
			Msg("Failed to learn contact mapping")
	}
}

// OverrideMapping creates or repoints a mapping explicitly. Manual rows
// win over learned ones because every lookup hits contact_mappings first.
func (s *Service) OverrideMapping(ctx context.Context, providerContactID string, accountID uuid.UUID) (*models.ContactMapping, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check account existence: %w", err)
	}
	if !exists {
		return nil, ErrAccountNotFound
	}

	m := models.ContactMapping{
		ID:                uuid.New(),
		ProviderContactID: providerContactID,
		AccountID:         accountID,
		Source:            models.MappingSourceManual,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO contact_mappings (id, provider_contact_id, account_id, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_contact_id) DO UPDATE
		SET account_id = EXCLUDED.account_id, source = EXCLUDED.source, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, m.ID, m.ProviderContactID, m.AccountID, m.Source, m.CreatedAt, m.UpdatedAt).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to override contact mapping: %w", err)
	}

	return &m, nil
}

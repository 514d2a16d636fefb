// Package ingest drives the webhook pipeline: authenticate, dedupe,
// resolve, record, then best-effort CRM sync and enrichment triggering.
// The call record write is the point of durability; everything after it
// may fail without failing the delivery.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ringlabs/callsync/internal/cache"
	"github.com/ringlabs/callsync/internal/callstore"
	"github.com/ringlabs/callsync/internal/config"
	"github.com/ringlabs/callsync/internal/crmsync"
	"github.com/ringlabs/callsync/internal/ledger"
	"github.com/ringlabs/callsync/internal/logging"
	"github.com/ringlabs/callsync/internal/models"
	"github.com/ringlabs/callsync/internal/monitoring"
	"github.com/ringlabs/callsync/internal/notify"
	"github.com/ringlabs/callsync/internal/resolver"
)

var log = logging.NewLogger("ingest")

// Controller errors
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// WebhookPayload is the provider's call event envelope
type WebhookPayload struct {
	ExternalEventID string `json:"event_id"`
	EventType       string `json:"event_type"`
	callstore.CallEvent
}

// Validate checks required envelope fields and enum values
func (p *WebhookPayload) Validate() error {
	if p.ExternalEventID == "" {
		return fmt.Errorf("%w: event_id is required", ErrInvalidPayload)
	}
	if p.EventType == "" {
		return fmt.Errorf("%w: event_type is required", ErrInvalidPayload)
	}
	if p.ExternalCallID == "" {
		return fmt.Errorf("%w: call_id is required", ErrInvalidPayload)
	}
	switch models.CallDirection(p.Direction) {
	case models.DirectionInbound, models.DirectionOutbound:
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidPayload, p.Direction)
	}
	if p.Outcome != "" && !models.ValidOutcome(p.Outcome) {
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidPayload, p.Outcome)
	}
	return nil
}

// Disposition classifies the result of one delivery
type Disposition string

const (
	// DispositionProcessed means the call record was written and all
	// follow-on effects succeeded.
	DispositionProcessed Disposition = "processed"
	// DispositionDuplicate means this event id was already fully
	// processed by an earlier delivery.
	DispositionDuplicate Disposition = "duplicate"
	// DispositionRecordedSyncFailed means the call record is durable but
	// the CRM cascade failed. The provider must not retry.
	DispositionRecordedSyncFailed Disposition = "recorded_sync_failed"
)

// Result reports the outcome of one processed delivery
type Result struct {
	Disposition  Disposition        `json:"disposition"`
	CallRecordID uuid.UUID          `json:"call_record_id,omitempty"`
	LinkMethod   models.LinkMethod  `json:"link_method,omitempty"`
	SyncReport   *crmsync.Report    `json:"sync_report,omitempty"`
	SyncError    error              `json:"-"`
}

// Controller orchestrates one webhook delivery end to end
type Controller struct {
	cfg      *config.Config
	ledger   *ledger.Service
	resolver *resolver.Service
	calls    *callstore.Service
	crm      *crmsync.Service
	cache    *cache.Redis
	sink     notify.Sink
	verifier Verifier
}

// NewController wires the pipeline. cache may be nil (dedup fast path and
// the enrichment trigger queue are both optional).
func NewController(
	cfg *config.Config,
	ledgerSvc *ledger.Service,
	resolverSvc *resolver.Service,
	calls *callstore.Service,
	crm *crmsync.Service,
	redisCache *cache.Redis,
	sink notify.Sink,
	verifier Verifier,
) *Controller {
	if sink == nil {
		sink = notify.NopSink{}
	}
	if verifier == nil {
		verifier = NoopVerifier{}
	}
	return &Controller{
		cfg:      cfg,
		ledger:   ledgerSvc,
		resolver: resolverSvc,
		calls:    calls,
		crm:      crm,
		cache:    redisCache,
		sink:     sink,
		verifier: verifier,
	}
}

// ProcessEvent handles one raw delivery. The caller maps the error class
// to an HTTP status: ErrInvalidSignature and ErrInvalidPayload are 4xx,
// anything else is 5xx and the provider will redeliver.
func (c *Controller) ProcessEvent(ctx context.Context, raw []byte, signature string) (*Result, error) {
	if !c.verifier.Verify(raw, signature) {
		monitoring.RecordWebhookEvent("unknown", "rejected")
		return nil, ErrInvalidSignature
	}

	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		monitoring.RecordWebhookEvent("unknown", "malformed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := payload.Validate(); err != nil {
		monitoring.RecordWebhookEvent(payload.EventType, "malformed")
		return nil, err
	}

	// Fast path: a cache hit means an earlier delivery already got the
	// record durable. The cache is advisory; a miss or a redis outage
	// falls through to the ledger, which is authoritative.
	if c.cache != nil {
		if c.cache.IsEventProcessed(ctx, payload.ExternalEventID) {
			monitoring.RecordDedupCacheHit()
			monitoring.RecordDuplicateDelivery()
			logging.LogWebhookEvent(payload.ExternalEventID, payload.EventType, "duplicate_cached")
			return &Result{Disposition: DispositionDuplicate}, nil
		}
		monitoring.RecordDedupCacheMiss()
	}

	entry, status, err := c.ledger.RecordOrGetStatus(ctx, payload.ExternalEventID, payload.EventType, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to record webhook event: %w", err)
	}
	if status == ledger.StatusAlreadyProcessed {
		monitoring.RecordDuplicateDelivery()
		logging.LogWebhookEvent(payload.ExternalEventID, payload.EventType, "duplicate")
		return &Result{Disposition: DispositionDuplicate}, nil
	}
	// StatusRetry: an earlier delivery recorded the entry and failed with
	// an error. Process as if new; the upsert is idempotent.

	result, err := c.process(ctx, entry, &payload)
	if err != nil {
		if markErr := c.ledger.MarkFailed(ctx, entry.ID, err); markErr != nil {
			log.Error().Err(markErr).Str("entry_id", entry.ID.String()).Msg("Failed to record processing error")
		}
		monitoring.RecordWebhookEvent(payload.EventType, "failed")
		return nil, err
	}

	monitoring.RecordWebhookEvent(payload.EventType, "processed")
	return result, nil
}

// process runs the durable write and the best-effort tail for one event
// already inserted into the ledger.
func (c *Controller) process(ctx context.Context, entry *models.WebhookLogEntry, payload *WebhookPayload) (*Result, error) {
	res, err := c.resolver.Resolve(ctx, payload.ContactID, payload.FromNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	rec, err := c.calls.Upsert(ctx, payload.CallEvent, res.AccountID, res.Method)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert call record: %w", err)
	}

	if err := c.ledger.MarkProcessed(ctx, entry.ID); err != nil {
		return nil, fmt.Errorf("failed to mark event processed: %w", err)
	}

	// Point of durability. From here every failure is reported, never
	// returned: the provider must not redeliver a recorded call.
	if c.cache != nil {
		c.cache.MarkEventProcessed(ctx, payload.ExternalEventID, c.cfg.Webhook.DedupCacheTTL)
	}

	result := &Result{
		Disposition:  DispositionProcessed,
		CallRecordID: rec.ID,
		LinkMethod:   res.Method,
	}

	if res.AccountID != nil && rec.Outcome != "" {
		report, syncErr := c.crm.SyncCall(ctx, *res.AccountID, rec.ID, rec.Outcome, c.callTime(payload), payload.DurationSeconds)
		if syncErr != nil {
			result.Disposition = DispositionRecordedSyncFailed
			result.SyncError = syncErr
			monitoring.RecordSyncFailure()
			logging.LogSyncFailure(payload.ExternalEventID, rec.ID.String(), syncErr)
			c.sink.Emit(ctx, models.AuditEvent{
				Level:        "warning",
				EventType:    "crm_sync_failed",
				Message:      syncErr.Error(),
				CallRecordID: &rec.ID,
				ExternalID:   &payload.ExternalEventID,
				Metadata:     map[string]string{"event_type": payload.EventType},
			})
		} else {
			result.SyncReport = report
		}
	}

	if rec.Status.IsTerminal() && c.cache != nil {
		c.cache.EnqueueEnrichment(ctx, c.cfg.Enrichment.QueueKey, rec.ID)
	}

	return result, nil
}

// callTime picks the best timestamp for CRM bookkeeping
func (c *Controller) callTime(payload *WebhookPayload) time.Time {
	switch {
	case payload.EndedAt != nil:
		return *payload.EndedAt
	case payload.StartedAt != nil:
		return *payload.StartedAt
	default:
		return time.Now()
	}
}

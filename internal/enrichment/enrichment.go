// Package enrichment derives post-call intelligence for completed calls:
// objection tags, a transcript summary and a suggested next action. It
// runs outside the ingestion path and tolerates repeated or concurrent
// invocation for the same call.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ringlabs/callsync/internal/callstore"
	"github.com/ringlabs/callsync/internal/config"
	"github.com/ringlabs/callsync/internal/logging"
	"github.com/ringlabs/callsync/internal/models"
	"github.com/ringlabs/callsync/internal/monitoring"
	"github.com/ringlabs/callsync/internal/notify"
)

var log = logging.NewLogger("enrichment")

// ErrNotEligible means the call is not terminal or has no text to work
// with. Callers treat it as a clean skip, not a failure.
var ErrNotEligible = errors.New("call not eligible for enrichment")

const summarySentences = 3

// Next-action suggestions produced by the decision table
const (
	ActionFollowUpText      = "Follow up by text message"
	ActionFollowUpEmail     = "Send a follow-up email"
	ActionSendPricing       = "Send pricing information and value proposition"
	ActionCompetitiveCompar = "Send competitive comparison"
	ActionScheduleCallback  = "Schedule a callback in 3-5 days"
	ActionSendProposal      = "Send proposal"
	ActionSendDetailedInfo  = "Send detailed product information"
	ActionSendCalendarLink  = "Send calendar link"
	ActionGenericFollowUp   = "Send a general follow-up email"
)

// Outcome reports what one enrichment run changed
type Outcome struct {
	CallRecordID  uuid.UUID `json:"call_record_id"`
	Tags          []string  `json:"tags"`
	TagsChanged   bool      `json:"tags_changed"`
	SummarySet    bool      `json:"summary_set"`
	NextActionSet bool      `json:"next_action_set"`
}

// Changed reports whether the run wrote anything beyond refreshing tags
// to the values already stored. Re-runs on an enriched call stay silent.
func (o *Outcome) Changed() bool {
	return o.SummarySet || o.NextActionSet || o.TagsChanged
}

// Worker enriches call records
type Worker struct {
	calls *callstore.Service
	sink  notify.Sink
	cfg   *config.EnrichmentConfig
	rules []TagRule
}

// NewWorker creates an enrichment worker. rules may be nil to use the
// default pattern table.
func NewWorker(calls *callstore.Service, sink notify.Sink, cfg *config.EnrichmentConfig, rules []TagRule) *Worker {
	if sink == nil {
		sink = notify.NopSink{}
	}
	if rules == nil {
		rules = DefaultTagRules()
	}
	return &Worker{calls: calls, sink: sink, cfg: cfg, rules: rules}
}

// EnrichCall runs one enrichment pass. Summary and next action are only
// written when currently null; tags are always recomputed. Re-running on
// an enriched call is a no-op beyond the tag refresh, so concurrent and
// repeated invocations converge on the same record.
func (w *Worker) EnrichCall(ctx context.Context, callID uuid.UUID) (*Outcome, error) {
	rec, err := w.calls.GetByID(ctx, callID)
	if err != nil {
		monitoring.RecordEnrichmentRun("error")
		return nil, err
	}

	if !rec.Status.IsTerminal() || (rec.Transcript == nil && rec.Summary == nil) {
		monitoring.RecordEnrichmentRun("skipped")
		return nil, ErrNotEligible
	}

	var text strings.Builder
	if rec.Transcript != nil {
		text.WriteString(*rec.Transcript)
	}
	if rec.Summary != nil {
		text.WriteString("\n")
		text.WriteString(*rec.Summary)
	}
	tags := DeriveTags(text.String(), w.rules)

	var summary *string
	if rec.Summary == nil && rec.Transcript != nil && len(*rec.Transcript) >= w.cfg.MinTranscriptChars {
		s := summarize(*rec.Transcript, summarySentences)
		if s != "" {
			summary = &s
		}
	}

	var nextAction *string
	if rec.NextAction == nil {
		if a := nextActionFor(rec.Outcome, tags); a != "" {
			nextAction = &a
		}
	}

	if err := w.calls.SetEnrichment(ctx, callID, summary, tags, nextAction); err != nil {
		monitoring.RecordEnrichmentRun("error")
		return nil, fmt.Errorf("failed to persist enrichment: %w", err)
	}

	outcome := &Outcome{
		CallRecordID:  callID,
		Tags:          tags,
		TagsChanged:   !equalTags(rec.Tags, tags),
		SummarySet:    summary != nil,
		NextActionSet: nextAction != nil,
	}

	logging.LogEnrichment(callID.String(), tags, outcome.SummarySet, outcome.NextActionSet)
	monitoring.RecordEnrichmentRun("enriched")

	if outcome.Changed() {
		w.sink.Emit(ctx, models.AuditEvent{
			Level:        "info",
			EventType:    "call_enriched",
			Message:      fmt.Sprintf("enriched call %s", rec.ExternalCallID),
			CallRecordID: &callID,
			Metadata: map[string]string{
				"tags":            strings.Join(tags, ","),
				"summary_set":     fmt.Sprintf("%t", outcome.SummarySet),
				"next_action_set": fmt.Sprintf("%t", outcome.NextActionSet),
			},
		})
	}

	return outcome, nil
}

// equalTags compares tag slices element-wise. Tag order is deterministic
// (rule-table order), so a plain comparison is enough.
func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// nextActionFor is the outcome-and-tag decision table. Earlier rows win.
func nextActionFor(outcome models.CallOutcome, tags []string) string {
	tagged := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagged[t] = true
	}

	switch outcome {
	case models.OutcomeMissed, models.OutcomeNoAnswer:
		return ActionFollowUpText
	case models.OutcomeVoicemail:
		return ActionFollowUpEmail
	}
	switch {
	case tagged[TagPriceObjection]:
		return ActionSendPricing
	case tagged[TagCompetitor]:
		return ActionCompetitiveCompar
	case tagged[TagNeedsConsideration]:
		return ActionScheduleCallback
	case tagged[TagInterested]:
		return ActionSendProposal
	case tagged[TagHasQuestions]:
		return ActionSendDetailedInfo
	case tagged[TagScheduling]:
		return ActionSendCalendarLink
	}
	if outcome == models.OutcomeAnswered {
		return ActionGenericFollowUp
	}
	return ""
}

// summarize returns the first n sentences of the transcript, collapsed to
// single-space whitespace.
func summarize(transcript string, n int) string {
	text := strings.Join(strings.Fields(transcript), " ")
	count := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			count++
			if count == n {
				return strings.TrimSpace(text[:i+1])
			}
		}
	}
	return text
}

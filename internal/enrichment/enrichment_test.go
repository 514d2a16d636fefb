package enrichment

import (
	"strings"
	"testing"

	"github.com/ringlabs/callsync/internal/models"
	"pgregory.net/rapid"
)

func TestDeriveTags(t *testing.T) {
	rules := DefaultTagRules()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"price objection", "Honestly this is way too expensive for us right now.", []string{TagPriceObjection}},
		{"not interested", "We are not interested, please stop calling.", []string{TagNotInterested}},
		{"competitor", "We're already using another competitor for this.", []string{TagCompetitor}},
		{"multiple tags", "It's too expensive and I need to think about it.", []string{TagPriceObjection, TagNeedsConsideration}},
		{"case insensitive", "TOO EXPENSIVE!", []string{TagPriceObjection}},
		{"tag emitted once", "too expensive, really can't afford the budget", []string{TagPriceObjection}},
		{"interested", "That sounds good, send me the details.", []string{TagInterested}},
		{"no match", "Thanks for the call, talk soon.", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTags(tt.text, rules)
			if len(got) != len(tt.want) {
				t.Fatalf("DeriveTags(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("DeriveTags(%q) = %v, want %v", tt.text, got, tt.want)
				}
			}
		})
	}
}

// TestProperty_DeriveTags_UniqueAndOrdered tests that derived tags are
// unique and follow rule-table order regardless of input.
func TestProperty_DeriveTags_UniqueAndOrdered(t *testing.T) {
	rules := DefaultTagRules()

	tagRank := make(map[string]int)
	for i, r := range rules {
		if _, ok := tagRank[r.Tag]; !ok {
			tagRank[r.Tag] = i
		}
	}

	rapid.Check(t, func(rt *rapid.T) {
		// Build text from random rule patterns plus noise
		n := rapid.IntRange(0, 8).Draw(rt, "n")
		var parts []string
		for i := 0; i < n; i++ {
			idx := rapid.IntRange(0, len(rules)-1).Draw(rt, "idx")
			parts = append(parts, rules[idx].Pattern)
		}
		parts = append(parts, rapid.StringMatching(`[a-z ]{0,30}`).Draw(rt, "noise"))
		text := strings.Join(parts, " and ")

		tags := DeriveTags(text, rules)

		seen := make(map[string]bool)
		lastRank := -1
		for _, tag := range tags {
			if seen[tag] {
				t.Fatalf("PROPERTY VIOLATION: duplicate tag %q in %v", tag, tags)
			}
			seen[tag] = true
			rank, ok := tagRank[tag]
			if !ok {
				t.Fatalf("PROPERTY VIOLATION: unknown tag %q", tag)
			}
			if rank < lastRank {
				t.Fatalf("PROPERTY VIOLATION: tags out of rule order: %v", tags)
			}
			lastRank = rank
		}
	})
}

func TestNextActionFor(t *testing.T) {
	tests := []struct {
		name    string
		outcome models.CallOutcome
		tags    []string
		want    string
	}{
		{"missed wins over tags", models.OutcomeMissed, []string{TagPriceObjection}, ActionFollowUpText},
		{"no answer", models.OutcomeNoAnswer, nil, ActionFollowUpText},
		{"voicemail", models.OutcomeVoicemail, nil, ActionFollowUpEmail},
		{"price objection", models.OutcomeAnswered, []string{TagPriceObjection}, ActionSendPricing},
		{"price beats competitor", models.OutcomeAnswered, []string{TagCompetitor, TagPriceObjection}, ActionSendPricing},
		{"competitor", models.OutcomeAnswered, []string{TagCompetitor}, ActionCompetitiveCompar},
		{"needs consideration", models.OutcomeAnswered, []string{TagNeedsConsideration}, ActionScheduleCallback},
		{"interested", models.OutcomeAnswered, []string{TagInterested}, ActionSendProposal},
		{"has questions", models.OutcomeAnswered, []string{TagHasQuestions}, ActionSendDetailedInfo},
		{"scheduling", models.OutcomeAnswered, []string{TagScheduling}, ActionSendCalendarLink},
		{"answered no tags", models.OutcomeAnswered, nil, ActionGenericFollowUp},
		{"busy no tags", models.OutcomeBusy, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextActionFor(tt.outcome, tt.tags); got != tt.want {
				t.Errorf("nextActionFor(%q, %v) = %q, want %q", tt.outcome, tt.tags, got, tt.want)
			}
		})
	}
}

// The canonical scenario: a transcript with a price objection produces
// the price_objection tag and a pricing next action.
func TestPriceObjectionEndToEnd(t *testing.T) {
	transcript := "I looked at the plan but it's too expensive for our team this quarter."

	tags := DeriveTags(transcript, DefaultTagRules())
	if len(tags) != 1 || tags[0] != TagPriceObjection {
		t.Fatalf("expected [price_objection], got %v", tags)
	}

	if got := nextActionFor(models.OutcomeAnswered, tags); got != ActionSendPricing {
		t.Fatalf("expected %q, got %q", ActionSendPricing, got)
	}
}

// A re-run that recomputes the same tags and writes nothing else is a
// no-op and must not report a change.
func TestOutcomeChanged(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    bool
	}{
		{"nothing written", Outcome{}, false},
		{"same tags rewritten", Outcome{Tags: []string{TagPriceObjection}, TagsChanged: false}, false},
		{"tags changed", Outcome{Tags: []string{TagPriceObjection}, TagsChanged: true}, true},
		{"tags cleared", Outcome{Tags: nil, TagsChanged: true}, true},
		{"summary written", Outcome{SummarySet: true}, true},
		{"next action written", Outcome{NextActionSet: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.Changed(); got != tt.want {
				t.Errorf("Changed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqualTags(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs empty", nil, []string{}, true},
		{"equal", []string{TagPriceObjection, TagInterested}, []string{TagPriceObjection, TagInterested}, true},
		{"different order", []string{TagInterested, TagPriceObjection}, []string{TagPriceObjection, TagInterested}, false},
		{"different length", []string{TagPriceObjection}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := equalTags(tt.a, tt.b); got != tt.want {
				t.Errorf("equalTags(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	transcript := "Hello, thanks for taking my call. I wanted to walk you through the new plan. It has three tiers. Each tier includes support. Let me know what you think."

	got := summarize(transcript, 3)
	want := "Hello, thanks for taking my call. I wanted to walk you through the new plan. It has three tiers."
	if got != want {
		t.Errorf("summarize() = %q, want %q", got, want)
	}

	// Fewer sentences than requested returns the whole text
	short := "One sentence only"
	if got := summarize(short, 3); got != short {
		t.Errorf("summarize(short) = %q, want %q", got, short)
	}

	// Whitespace collapsed
	messy := "First  line.\nSecond\tline. Third line. Fourth."
	if got := summarize(messy, 2); got != "First line. Second line." {
		t.Errorf("summarize(messy) = %q", got)
	}
}

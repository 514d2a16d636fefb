package enrichment

import "strings"

// TagRule maps a lowercase substring pattern to an objection tag.
// Rules are evaluated in order and each tag is emitted at most once.
type TagRule struct {
	Pattern string
	Tag     string
}

// Tag names emitted by the default rule set
const (
	TagPriceObjection     = "price_objection"
	TagNotInterested      = "not_interested"
	TagCompetitor         = "competitor"
	TagNeedsConsideration = "needs_consideration"
	TagUncertainty        = "uncertainty"
	TagScheduling         = "scheduling"
	TagHasQuestions       = "has_questions"
	TagInterested         = "interested"
)

// DefaultTagRules is the ordered pattern table. It is data, not control
// flow: callers may pass a localized or customer-specific table instead.
func DefaultTagRules() []TagRule {
	return []TagRule{
		{"too expensive", TagPriceObjection},
		{"can't afford", TagPriceObjection},
		{"cannot afford", TagPriceObjection},
		{"price is", TagPriceObjection},
		{"budget", TagPriceObjection},
		{"not interested", TagNotInterested},
		{"no thanks", TagNotInterested},
		{"stop calling", TagNotInterested},
		{"competitor", TagCompetitor},
		{"already using", TagCompetitor},
		{"other vendor", TagCompetitor},
		{"think about it", TagNeedsConsideration},
		{"need to discuss", TagNeedsConsideration},
		{"get back to you", TagNeedsConsideration},
		{"not sure", TagUncertainty},
		{"maybe", TagUncertainty},
		{"call me back", TagScheduling},
		{"schedule", TagScheduling},
		{"next week", TagScheduling},
		{"question", TagHasQuestions},
		{"how does", TagHasQuestions},
		{"very interested", TagInterested},
		{"i'm interested", TagInterested},
		{"sounds good", TagInterested},
		{"send me", TagInterested},
	}
}

// DeriveTags scans text against the rule table. Matching is
// case-insensitive substring; rule order determines tag order.
func DeriveTags(text string, rules []TagRule) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var tags []string
	for _, r := range rules {
		if seen[r.Tag] {
			continue
		}
		if strings.Contains(lower, r.Pattern) {
			seen[r.Tag] = true
			tags = append(tags, r.Tag)
		}
	}
	return tags
}

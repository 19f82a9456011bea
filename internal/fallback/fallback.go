// Package fallback produces a rule-based categorization when scoring cannot
// run: empty taxonomy, degenerate input, or an internal fault. It consults
// only the fixed domain lexicons, never the learning store, so its output
// is reproducible even while persisted state is corrupt or unavailable.
package fallback

import "github.com/kalambet/triage/internal/signals"

// Confidence constants. Rule-matched fallbacks report a conservative "best
// guess" confidence; degenerate input reports the lowest.
const (
	Confidence           = 0.6
	DegenerateConfidence = 0.3
)

// Reasoning is the fixed justification attached to fallback results.
const Reasoning = "fallback keyword matching used; scoring was unavailable"

// Suggestion is a rule-based categorization.
type Suggestion struct {
	Pillar     string
	Area       string
	Confidence float64
}

// defaultSuggestion catches text matching no domain lexicon.
var defaultSuggestion = Suggestion{
	Pillar:     "Personal Growth",
	Area:       "General",
	Confidence: Confidence,
}

// Suggest maps text to the first matching domain's default pillar/area.
// Deterministic: domains are consulted in lexicon declaration order.
func Suggest(text string) Suggestion {
	domains := signals.MatchDomains(text)
	if len(domains) == 0 {
		return defaultSuggestion
	}
	return Suggestion{
		Pillar:     domains[0].FallbackPillar,
		Area:       domains[0].FallbackArea,
		Confidence: Confidence,
	}
}

// Package scoring computes match scores for every taxonomy leaf and ranks
// the results. Scoring is a pure in-memory computation: no I/O, no
// randomness, runtime proportional to taxonomy size times the recent-capture
// window.
package scoring

import (
	"math"
	"strings"

	"github.com/kalambet/triage/internal/signals"
	"github.com/kalambet/triage/internal/snapshot"
	"github.com/kalambet/triage/internal/taxonomy"
)

// Candidate is one taxonomy leaf with its normalized match score.
type Candidate struct {
	Leaf  taxonomy.Leaf
	Score float64
}

// WeightSource supplies learned per-leaf adjustments for a text signature.
// Implemented by learning.Store. A nil map (or nil source) means no
// adjustments, which is exactly how persistence failures degrade.
type WeightSource interface {
	Adjustments(signature string) map[string]float64
}

// Scoring coefficients. Each raw component lies in [0,1]; the learned
// adjustment is additive and clamped to ±AdjustmentCap so a single
// correction can never dominate the base signal.
const (
	weightLexical   = 0.35
	weightRecency   = 0.25
	weightFrequency = 0.15
	weightDomain    = 0.25

	activeProjectBonus = 0.05

	// AdjustmentCap bounds the learned adjustment applied per leaf.
	AdjustmentCap = 0.25

	// Logistic squash parameters mapping raw scores into (0,1).
	logisticSteepness = 6.0
	logisticMidpoint  = 0.18

	// recencyDecay halves each older capture's contribution.
	recencyDecay = 0.5

	// tieBreakBoost lifts the default pillar when no signal discriminates.
	tieBreakBoost = 0.05
)

// Score computes a candidate per taxonomy leaf, in leaf declaration order.
// It returns taxonomy.ErrNoTaxonomy when the snapshot has no pillars; the
// caller must fall back to rule-based categorization in that case.
func Score(text string, features signals.Features, ctx snapshot.Context, tax taxonomy.Snapshot, weights WeightSource) ([]Candidate, error) {
	if tax.Empty() {
		return nil, taxonomy.ErrNoTaxonomy
	}

	var adjustments map[string]float64
	if weights != nil {
		adjustments = weights.Adjustments(signals.Signature(text))
	}

	domains := signals.MatchDomains(text)
	history := historicalKeywords(ctx)
	leaves := tax.Leaves()

	raws := make([]float64, len(leaves))
	for i, leaf := range leaves {
		raw := weightLexical*lexicalOverlap(features.Keywords, leaf, history) +
			weightRecency*recencyMatch(ctx.Recent, leaf) +
			weightFrequency*frequencyBias(ctx.TopPillars, leaf.Pillar) +
			weightDomain*domainAffinity(domains, leaf)

		if leaf.Project != "" && containsFold(ctx.ActiveProjects, leaf.Project) {
			raw += activeProjectBonus
		}

		if adj, ok := adjustments[leaf.Key()]; ok {
			raw += clamp(adj, -AdjustmentCap, AdjustmentCap)
		}
		raws[i] = raw
	}

	// With no discriminating signal the default pillar must still win,
	// by definition rather than by chance.
	if allEqual(raws) {
		def := defaultPillar(ctx, tax)
		for i, leaf := range leaves {
			if leaf.Area == "" && leaf.Project == "" && strings.EqualFold(leaf.Pillar, def) {
				raws[i] += tieBreakBoost
			}
		}
	}

	candidates := make([]Candidate, len(leaves))
	for i, leaf := range leaves {
		candidates[i] = Candidate{Leaf: leaf, Score: squash(raws[i])}
	}
	return candidates, nil
}

// historicalKeywords maps each pillar name (lowercased) to the keywords of
// recent captures resolved to it. Rebuilt per call from the bounded window.
func historicalKeywords(ctx snapshot.Context) map[string][]string {
	pools := make(map[string][]string)
	for _, c := range ctx.Recent {
		key := strings.ToLower(c.Pillar)
		pools[key] = append(pools[key], signals.Extract(c.Text).Keywords...)
	}
	return pools
}

// lexicalOverlap is the fraction of extracted keywords found in the leaf's
// keyword pool: tokens of its own names plus historical keywords of captures
// previously resolved to its pillar.
func lexicalOverlap(keywords []string, leaf taxonomy.Leaf, history map[string][]string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	pool := make(map[string]bool)
	for _, name := range []string{leaf.Pillar, leaf.Area, leaf.Project} {
		for _, tok := range signals.Tokenize(name) {
			pool[tok] = true
		}
	}
	for _, kw := range history[strings.ToLower(leaf.Pillar)] {
		pool[kw] = true
	}

	var hits int
	for _, kw := range keywords {
		if pool[kw] {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// recencyMatch sums a geometric decay over window captures matching the
// leaf: the most recent match contributes 1.0, the next 0.5, and so on.
// The sum is capped at 1.
func recencyMatch(recent []snapshot.Capture, leaf taxonomy.Leaf) float64 {
	var sum, decay float64
	decay = 1.0
	for _, c := range recent {
		if strings.EqualFold(c.Pillar, leaf.Pillar) &&
			(leaf.Area == "" || strings.EqualFold(c.Area, leaf.Area)) {
			sum += decay
		}
		decay *= recencyDecay
	}
	return math.Min(sum, 1.0)
}

// frequencyBias rewards pillars near the top of the usage ranking linearly;
// unranked pillars get no bias.
func frequencyBias(topPillars []string, pillar string) float64 {
	n := len(topPillars)
	for i, name := range topPillars {
		if strings.EqualFold(name, pillar) {
			return float64(n-i) / float64(n)
		}
	}
	return 0
}

// domainAffinity is 1 when any matched domain lexicon recognizes one of the
// leaf's names, 0 otherwise.
func domainAffinity(domains []signals.Domain, leaf taxonomy.Leaf) float64 {
	for _, d := range domains {
		if d.MatchesLeafName(leaf.Pillar) || d.MatchesLeafName(leaf.Area) || d.MatchesLeafName(leaf.Project) {
			return 1
		}
	}
	return 0
}

// defaultPillar is the top-ranked pillar by usage, falling back to the first
// declared pillar.
func defaultPillar(ctx snapshot.Context, tax taxonomy.Snapshot) string {
	if len(ctx.TopPillars) > 0 {
		return ctx.TopPillars[0]
	}
	return tax.Pillars[0].Name
}

func squash(raw float64) float64 {
	return 1 / (1 + math.Exp(-logisticSteepness*(raw-logisticMidpoint)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func allEqual(vals []float64) bool {
	for _, v := range vals[1:] {
		if v != vals[0] {
			return false
		}
	}
	return true
}

func containsFold(names []string, target string) bool {
	for _, n := range names {
		if strings.EqualFold(n, target) {
			return true
		}
	}
	return false
}

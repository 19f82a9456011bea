package scoring

import "sort"

// DefaultMaxAlternatives is how many next-best candidates are reported when
// the caller does not override it.
const DefaultMaxAlternatives = 3

// ScoreFloor drops alternatives scoring below it. The primary is exempt: a
// categorization is always produced.
const ScoreFloor = 0.05

// Ranked is a sorted candidate set split into a primary and alternatives.
type Ranked struct {
	Primary      Candidate
	Alternatives []Candidate
}

// Rank sorts candidates descending by score (stable, so equal scores keep
// the scorer's declaration-order emission) and splits off the primary.
// Alternatives below ScoreFloor are dropped. An empty candidate set yields a
// zero Ranked; Score guarantees non-empty output so this only defends
// against misuse.
func Rank(candidates []Candidate, maxAlternatives int) Ranked {
	if len(candidates) == 0 {
		return Ranked{}
	}
	if maxAlternatives <= 0 {
		maxAlternatives = DefaultMaxAlternatives
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	r := Ranked{Primary: sorted[0]}
	for _, c := range sorted[1:] {
		if len(r.Alternatives) >= maxAlternatives {
			break
		}
		if c.Score < ScoreFloor {
			break
		}
		r.Alternatives = append(r.Alternatives, c)
	}
	return r
}

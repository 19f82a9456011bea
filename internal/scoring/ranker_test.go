package scoring

import (
	"testing"

	"github.com/kalambet/triage/internal/taxonomy"
)

func cand(pillar string, score float64) Candidate {
	return Candidate{Leaf: taxonomy.Leaf{Pillar: pillar}, Score: score}
}

func TestRankOrdersDescending(t *testing.T) {
	r := Rank([]Candidate{cand("a", 0.2), cand("b", 0.9), cand("c", 0.5)}, 3)
	if r.Primary.Leaf.Pillar != "b" {
		t.Errorf("primary = %q, want b", r.Primary.Leaf.Pillar)
	}
	if len(r.Alternatives) != 2 || r.Alternatives[0].Leaf.Pillar != "c" || r.Alternatives[1].Leaf.Pillar != "a" {
		t.Errorf("alternatives = %v", r.Alternatives)
	}
	for _, alt := range r.Alternatives {
		if alt.Score > r.Primary.Score {
			t.Errorf("alternative %v outranks primary %v", alt, r.Primary)
		}
	}
}

func TestRankStableOnTies(t *testing.T) {
	// Equal scores must preserve emission order (taxonomy declaration order).
	r := Rank([]Candidate{cand("first", 0.4), cand("second", 0.4), cand("third", 0.4)}, 3)
	if r.Primary.Leaf.Pillar != "first" {
		t.Errorf("primary = %q, want first", r.Primary.Leaf.Pillar)
	}
	if r.Alternatives[0].Leaf.Pillar != "second" || r.Alternatives[1].Leaf.Pillar != "third" {
		t.Errorf("alternatives = %v", r.Alternatives)
	}
}

func TestRankCapsAlternatives(t *testing.T) {
	cands := []Candidate{
		cand("a", 0.9), cand("b", 0.8), cand("c", 0.7), cand("d", 0.6), cand("e", 0.5),
	}
	r := Rank(cands, 3)
	if len(r.Alternatives) != 3 {
		t.Errorf("len(alternatives) = %d, want 3", len(r.Alternatives))
	}

	r = Rank(cands, 0) // default
	if len(r.Alternatives) != DefaultMaxAlternatives {
		t.Errorf("len(alternatives) = %d, want default %d", len(r.Alternatives), DefaultMaxAlternatives)
	}
}

func TestRankDropsBelowFloorButKeepsPrimary(t *testing.T) {
	r := Rank([]Candidate{cand("a", 0.04), cand("b", 0.01)}, 3)
	if r.Primary.Leaf.Pillar != "a" {
		t.Errorf("primary = %q, want a (primary never dropped)", r.Primary.Leaf.Pillar)
	}
	if len(r.Alternatives) != 0 {
		t.Errorf("alternatives = %v, want none below floor", r.Alternatives)
	}
}

func TestRankEmptyInput(t *testing.T) {
	r := Rank(nil, 3)
	if r.Primary.Leaf.Pillar != "" || len(r.Alternatives) != 0 {
		t.Errorf("Rank(nil) = %+v, want zero value", r)
	}
}

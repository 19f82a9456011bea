// Package learning holds the adaptive state of the engine: per-signature
// adjustment weights mutated only by explicit feedback events, plus running
// accuracy telemetry. The store is the engine's single shared mutable
// resource; all read-modify-write of a signature's weights happens under one
// lock so concurrent feedback cannot corrupt it.
package learning

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/triage/internal/signals"
	"github.com/kalambet/triage/internal/taxonomy"
)

const (
	// Step is the weight delta applied per feedback event.
	Step = 0.08
	// WeightCap bounds each (signature, leaf) weight so repeated identical
	// feedback converges instead of drifting without bound.
	WeightCap = 0.25
)

// Persister is the durable backing for learned state. Implemented by
// storage.Store. All failures are treated as non-fatal: reads degrade to
// empty adjustments and dropped writes are logged.
type Persister interface {
	LoadLearnedWeights() (map[string]map[string]float64, error)
	UpsertLearnedWeight(signature, leafKey string, weight float64) error
	SaveFeedbackEvent(text, signature, pillar, area, project string, wasCorrect bool, createdAt time.Time) error
	FeedbackCounts() (total, correct int64, err error)
}

// Stats is the read-only learning telemetry exposed to callers.
type Stats struct {
	TotalItems int64   `json:"total_items"`
	Accuracy   float64 `json:"accuracy"`
}

// Store is the process-wide learned-weights map. Create one per engine and
// inject it; tests use NewInMemory for isolated instances.
type Store struct {
	mu      sync.RWMutex
	weights map[string]map[string]float64 // signature -> leaf key -> weight
	total   int64
	correct int64

	persist Persister // nil for in-memory stores
	logger  *slog.Logger
}

// NewInMemory creates a Store with no durable backing.
func NewInMemory() *Store {
	return &Store{
		weights: make(map[string]map[string]float64),
		logger:  slog.Default(),
	}
}

// Open creates a Store backed by p, loading previously persisted weights and
// feedback counters. Load failures are logged and the store starts empty
// rather than failing: learned state is an optimization, not a dependency.
func Open(p Persister) *Store {
	s := NewInMemory()
	s.persist = p

	weights, err := p.LoadLearnedWeights()
	if err != nil {
		s.logger.Warn("loading learned weights failed, starting empty", "error", err)
		return s
	}
	s.weights = weights
	if s.weights == nil {
		s.weights = make(map[string]map[string]float64)
	}

	total, correct, err := p.FeedbackCounts()
	if err != nil {
		s.logger.Warn("loading feedback counters failed", "error", err)
		return s
	}
	s.total, s.correct = total, correct
	return s
}

// Adjustments returns a copy of the weights for a signature, safe to read
// while other goroutines record feedback. A missing signature yields nil.
func (s *Store) Adjustments(signature string) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	leafWeights, ok := s.weights[signature]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(leafWeights))
	for k, v := range leafWeights {
		out[k] = v
	}
	return out
}

// RecordFeedback consumes one feedback event. accepted is the category the
// user confirmed or corrected to; suggested, when non-nil, is the engine's
// original (wrong) suggestion and is decremented. The in-memory update always
// happens; a persistence failure is returned for the caller to log but never
// rolls the update back.
func (s *Store) RecordFeedback(text string, accepted taxonomy.Leaf, suggested *taxonomy.Leaf, wasCorrect bool, now time.Time) error {
	signature := signals.Signature(text)

	s.mu.Lock()
	s.total++
	if wasCorrect {
		s.correct++
	}

	type change struct {
		leafKey string
		weight  float64
	}
	var changed []change
	if signature != "" {
		changed = append(changed, change{accepted.Key(), s.bump(signature, accepted.Key(), Step)})
		if !wasCorrect && suggested != nil && suggested.Key() != accepted.Key() {
			changed = append(changed, change{suggested.Key(), s.bump(signature, suggested.Key(), -Step)})
		}
	}
	s.mu.Unlock()

	if s.persist == nil {
		return nil
	}

	for _, c := range changed {
		if err := s.persist.UpsertLearnedWeight(signature, c.leafKey, c.weight); err != nil {
			return fmt.Errorf("persisting weight for %q: %w", signature, err)
		}
	}
	if err := s.persist.SaveFeedbackEvent(text, signature, accepted.Pillar, accepted.Area, accepted.Project, wasCorrect, now); err != nil {
		return fmt.Errorf("persisting feedback event: %w", err)
	}
	return nil
}

// bump adjusts one weight by delta, clamped to ±WeightCap, and returns the
// new value. Caller holds s.mu.
func (s *Store) bump(signature, leafKey string, delta float64) float64 {
	leafWeights, ok := s.weights[signature]
	if !ok {
		leafWeights = make(map[string]float64)
		s.weights[signature] = leafWeights
	}
	w := leafWeights[leafKey] + delta
	if w > WeightCap {
		w = WeightCap
	}
	if w < -WeightCap {
		w = -WeightCap
	}
	leafWeights[leafKey] = w
	return w
}

// Stats reports running feedback telemetry. Accuracy is 0 until the first
// event arrives.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{TotalItems: s.total}
	if s.total > 0 {
		st.Accuracy = float64(s.correct) / float64(s.total)
	}
	return st
}

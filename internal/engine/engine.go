// Package engine is the single entry point of the categorization core. It
// ties the signal extractor, context aggregator, scorer, ranker, fallback
// policy, and learning store together behind Categorize / LearnFromFeedback /
// LearningStats. Categorize never fails: every internal fault degrades to a
// rule-based fallback result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/triage/internal/fallback"
	"github.com/kalambet/triage/internal/learning"
	"github.com/kalambet/triage/internal/scoring"
	"github.com/kalambet/triage/internal/signals"
	"github.com/kalambet/triage/internal/snapshot"
	"github.com/kalambet/triage/internal/taxonomy"
)

// ErrDegenerateInput marks empty or whitespace-only capture text. The engine
// itself degrades to the lowest-confidence fallback instead of returning it;
// API layers use it to reject such requests up front.
var ErrDegenerateInput = errors.New("capture text is empty")

// ContentType is the declared kind of a capture.
type ContentType string

const (
	ContentTask ContentType = "task"
	ContentNote ContentType = "note"
	ContentIdea ContentType = "idea"
	ContentGoal ContentType = "goal"
)

// ValidContentType reports whether s is one of the known capture kinds.
func ValidContentType(s string) bool {
	switch ContentType(s) {
	case ContentTask, ContentNote, ContentIdea, ContentGoal:
		return true
	}
	return false
}

// Category names a taxonomy target in user terms.
type Category struct {
	Pillar  string `json:"pillar"`
	Area    string `json:"area,omitempty"`
	Project string `json:"project,omitempty"`
}

func (c Category) leaf() taxonomy.Leaf {
	return taxonomy.Leaf{Pillar: c.Pillar, Area: c.Area, Project: c.Project}
}

// Alternative is a next-best candidate with its own score.
type Alternative struct {
	Category
	Score float64 `json:"score"`
}

// Metadata is the extracted per-capture signal summary returned alongside
// the categorization.
type Metadata struct {
	Sentiment        signals.Sentiment  `json:"sentiment"`
	Urgency          signals.Urgency    `json:"urgency"`
	Complexity       signals.Complexity `json:"complexity"`
	Keywords         []string           `json:"keywords"`
	SuggestedTags    []string           `json:"suggested_tags"`
	Priority         string             `json:"priority"`
	EstimatedMinutes int                `json:"estimated_minutes,omitempty"`
}

// Result is the immutable outcome of one categorization call.
type Result struct {
	Pillar       string        `json:"pillar"`
	Area         string        `json:"area,omitempty"`
	Project      string        `json:"project,omitempty"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives"`
	Reasoning    string        `json:"reasoning"`
	Metadata     Metadata      `json:"metadata"`
}

// TaxonomyProvider supplies a read-only snapshot of the caller's
// organizational structure.
type TaxonomyProvider interface {
	Taxonomy(ctx context.Context) (taxonomy.Snapshot, error)
}

// CaptureProvider supplies the bounded recent-capture history, newest first.
type CaptureProvider interface {
	RecentCaptures(ctx context.Context, limit int) ([]snapshot.Capture, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options tune an Engine. Zero values select defaults.
type Options struct {
	MaxAlternatives int
	RecentWindow    int
	Clock           Clock
	Logger          *slog.Logger
}

// Engine is the categorization facade. Safe for concurrent use: per-call
// state is local and the learning store serializes its own writes.
type Engine struct {
	taxonomy        TaxonomyProvider
	captures        CaptureProvider
	store           *learning.Store
	clock           Clock
	maxAlternatives int
	recentWindow    int
	logger          *slog.Logger
}

// New wires an Engine to its collaborators. store must not be nil; use
// learning.NewInMemory when persistence is not wanted.
func New(tp TaxonomyProvider, cp CaptureProvider, store *learning.Store, opts Options) *Engine {
	e := &Engine{
		taxonomy:        tp,
		captures:        cp,
		store:           store,
		clock:           opts.Clock,
		maxAlternatives: opts.MaxAlternatives,
		recentWindow:    opts.RecentWindow,
		logger:          opts.Logger,
	}
	if e.clock == nil {
		e.clock = realClock{}
	}
	if e.maxAlternatives <= 0 {
		e.maxAlternatives = scoring.DefaultMaxAlternatives
	}
	if e.recentWindow <= 0 {
		e.recentWindow = snapshot.RecentWindow
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Categorize assembles the context from the engine's providers and
// categorizes text. Provider failures degrade: a missing taxonomy triggers
// the fallback policy, missing history scores without recency signal.
func (e *Engine) Categorize(ctx context.Context, text string, kind ContentType) Result {
	tax, err := e.taxonomy.Taxonomy(ctx)
	if err != nil {
		e.logger.Warn("taxonomy unavailable, using fallback", "error", err)
		tax = taxonomy.Snapshot{}
	}

	var recent []snapshot.Capture
	if e.captures != nil {
		recent, err = e.captures.RecentCaptures(ctx, e.recentWindow)
		if err != nil {
			e.logger.Warn("capture history unavailable, scoring without recency", "error", err)
			recent = nil
		}
	}

	sc := snapshot.Build(tax, recent, tax.ActiveProjects(), e.clock.Now())
	return e.CategorizeInContext(text, kind, tax, sc)
}

// CategorizeInContext categorizes text against a caller-assembled context.
// It is deterministic for identical inputs and learning-store state, and it
// always returns a usable result.
func (e *Engine) CategorizeInContext(text string, kind ContentType, tax taxonomy.Snapshot, sc snapshot.Context) Result {
	features := signals.Extract(text)

	if strings.TrimSpace(text) == "" {
		return e.fallbackResult(text, kind, features, fallback.DegenerateConfidence)
	}

	candidates, err := scoring.Score(text, features, sc, tax, e.store)
	if err != nil {
		if !errors.Is(err, taxonomy.ErrNoTaxonomy) {
			e.logger.Warn("scoring failed, using fallback", "error", err)
		}
		return e.fallbackResult(text, kind, features, fallback.Confidence)
	}

	ranked := scoring.Rank(candidates, e.maxAlternatives)

	result := Result{
		Pillar:     ranked.Primary.Leaf.Pillar,
		Area:       ranked.Primary.Leaf.Area,
		Project:    ranked.Primary.Leaf.Project,
		Confidence: ranked.Primary.Score,
		Reasoning:  e.reasoning(text, ranked.Primary, sc),
		Metadata:   buildMetadata(kind, features, text),
	}
	for _, alt := range ranked.Alternatives {
		result.Alternatives = append(result.Alternatives, Alternative{
			Category: Category{Pillar: alt.Leaf.Pillar, Area: alt.Leaf.Area, Project: alt.Leaf.Project},
			Score:    alt.Score,
		})
	}

	e.logger.Debug("categorized capture",
		"pillar", result.Pillar,
		"confidence", result.Confidence,
		"alternatives", len(result.Alternatives),
	)
	return result
}

// LearnFromFeedback records one accept/correct event. suggested carries the
// engine's original category when the user corrected it; pass nil when
// unknown. The returned error reports persistence trouble only; the
// in-memory learned state is already updated and the caller should log
// rather than surface it.
func (e *Engine) LearnFromFeedback(text string, accepted Category, suggested *Category, wasCorrect bool) error {
	var orig *taxonomy.Leaf
	if suggested != nil {
		l := suggested.leaf()
		orig = &l
	}
	if err := e.store.RecordFeedback(text, accepted.leaf(), orig, wasCorrect, e.clock.Now()); err != nil {
		e.logger.Warn("feedback not persisted", "error", err)
		return err
	}
	return nil
}

// LearningStats reports the learning store's telemetry.
func (e *Engine) LearningStats() learning.Stats {
	return e.store.Stats()
}

func (e *Engine) fallbackResult(text string, kind ContentType, features signals.Features, confidence float64) Result {
	s := fallback.Suggest(text)
	return Result{
		Pillar:     s.Pillar,
		Area:       s.Area,
		Confidence: confidence,
		Reasoning:  fallback.Reasoning,
		Metadata:   buildMetadata(kind, features, text),
	}
}

// reasoning composes a short human-readable justification from the signals
// that actually fired for the primary candidate.
func (e *Engine) reasoning(text string, primary scoring.Candidate, sc snapshot.Context) string {
	var parts []string

	for _, d := range signals.MatchDomains(text) {
		if d.MatchesLeafName(primary.Leaf.Pillar) || d.MatchesLeafName(primary.Leaf.Area) || d.MatchesLeafName(primary.Leaf.Project) {
			parts = append(parts, fmt.Sprintf("keywords match the %s domain", d.Name))
			break
		}
	}

	var recentHits int
	for _, c := range sc.Recent {
		if strings.EqualFold(c.Pillar, primary.Leaf.Pillar) {
			recentHits++
		}
	}
	if recentHits > 0 {
		parts = append(parts, fmt.Sprintf("%d recent capture(s) resolved to %s", recentHits, primary.Leaf.Pillar))
	}

	for i, name := range sc.TopPillars {
		if strings.EqualFold(name, primary.Leaf.Pillar) {
			parts = append(parts, fmt.Sprintf("pillar usage rank %d", i+1))
			break
		}
	}

	if adj := e.store.Adjustments(signals.Signature(text)); adj[primary.Leaf.Key()] != 0 {
		parts = append(parts, "adjusted by your previous feedback")
	}

	if len(parts) == 0 {
		parts = append(parts, "no strong signal; chose the most-used pillar")
	}
	return fmt.Sprintf("suggested %s: %s", primary.Leaf.Pillar, strings.Join(parts, "; "))
}

func buildMetadata(kind ContentType, features signals.Features, text string) Metadata {
	m := Metadata{
		Sentiment:  features.Sentiment,
		Urgency:    features.Urgency,
		Complexity: features.Complexity,
		Keywords:   features.Keywords,
		Priority:   string(features.Urgency),
	}

	for _, d := range signals.MatchDomains(text) {
		m.SuggestedTags = append(m.SuggestedTags, d.Name)
	}
	if kind != "" {
		m.SuggestedTags = append(m.SuggestedTags, string(kind))
	}

	// Duration only makes sense for actionable captures.
	if kind == ContentTask {
		switch features.Complexity {
		case signals.ComplexitySimple:
			m.EstimatedMinutes = 15
		case signals.ComplexityModerate:
			m.EstimatedMinutes = 45
		case signals.ComplexityComplex:
			m.EstimatedMinutes = 120
		}
	}
	return m
}

// Package signals turns raw capture text into normalized features: keywords,
// complexity and urgency buckets, sentiment, and a deterministic signature
// used as the learning-store lookup key. Everything here is a pure function
// of the input string.
package signals

import (
	"sort"
	"strings"
	"unicode"
)

// Complexity buckets a capture by token count.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Urgency is the extracted urgency cue level.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Sentiment is the heuristic polarity of the capture.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

const (
	maxKeywords      = 5
	minKeywordLen    = 4
	simpleThreshold  = 8  // fewer tokens than this is "simple"
	complexThreshold = 20 // more tokens than this is "complex"
)

// urgencyTerms escalate urgency to high when present as a token.
// "tomorrow" is deliberately absent: a dated intent is not an urgency cue.
var urgencyTerms = map[string]bool{
	"urgent":      true,
	"asap":        true,
	"deadline":    true,
	"today":       true,
	"immediately": true,
	"critical":    true,
	"overdue":     true,
	"emergency":   true,
}

// obligationCues bump urgency to medium; plain imperatives stay low.
var obligationCues = []string{
	"need to",
	"must ",
	"have to",
	"don't forget",
	"dont forget",
	"remember to",
}

var positiveTerms = map[string]bool{
	"great": true, "good": true, "love": true, "excited": true,
	"happy": true, "awesome": true, "amazing": true, "progress": true,
	"win": true, "proud": true, "grateful": true, "energized": true,
}

var negativeTerms = map[string]bool{
	"worried": true, "stress": true, "stressed": true, "anxious": true,
	"bad": true, "fail": true, "failed": true, "tired": true,
	"frustrated": true, "angry": true, "hate": true, "behind": true,
}

// Features is the normalized output of extraction.
type Features struct {
	Tokens     []string // lowercased tokens in input order
	Keywords   []string // deduplicated, ranked, capped
	Complexity Complexity
	Urgency    Urgency
	Sentiment  Sentiment
}

// Tokenize splits text on anything that is not a letter or digit and
// lowercases the result. Deterministic for identical input.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Extract computes features for a capture. It has no side effects and no
// dependence on context, so identical text always yields identical features.
func Extract(text string) Features {
	tokens := Tokenize(text)

	f := Features{
		Tokens:     tokens,
		Keywords:   rankKeywords(tokens),
		Complexity: complexityOf(len(tokens)),
		Urgency:    urgencyOf(text, tokens),
		Sentiment:  sentimentOf(tokens),
	}
	return f
}

// Signature returns the deterministic learning-store key for text: the
// extracted keywords sorted and joined. Empty text yields "".
func Signature(text string) string {
	kw := rankKeywords(Tokenize(text))
	sorted := make([]string, len(kw))
	copy(sorted, kw)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

// rankKeywords deduplicates tokens longer than three characters and ranks
// them by frequency descending, breaking ties by first occurrence, capped at
// maxKeywords.
func rankKeywords(tokens []string) []string {
	type entry struct {
		word  string
		count int
		first int
	}
	seen := make(map[string]*entry)
	var order []*entry
	for i, tok := range tokens {
		if len(tok) < minKeywordLen {
			continue
		}
		if e, ok := seen[tok]; ok {
			e.count++
			continue
		}
		e := &entry{word: tok, count: 1, first: i}
		seen[tok] = e
		order = append(order, e)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})

	n := len(order)
	if n > maxKeywords {
		n = maxKeywords
	}
	keywords := make([]string, 0, n)
	for _, e := range order[:n] {
		keywords = append(keywords, e.word)
	}
	return keywords
}

func complexityOf(tokenCount int) Complexity {
	switch {
	case tokenCount < simpleThreshold:
		return ComplexitySimple
	case tokenCount > complexThreshold:
		return ComplexityComplex
	default:
		return ComplexityModerate
	}
}

func urgencyOf(text string, tokens []string) Urgency {
	for _, tok := range tokens {
		if urgencyTerms[tok] {
			return UrgencyHigh
		}
	}
	lower := strings.ToLower(text)
	for _, cue := range obligationCues {
		if strings.Contains(lower, cue) {
			return UrgencyMedium
		}
	}
	return UrgencyLow
}

func sentimentOf(tokens []string) Sentiment {
	var pos, neg int
	for _, tok := range tokens {
		if positiveTerms[tok] {
			pos++
		}
		if negativeTerms[tok] {
			neg++
		}
	}
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Package snapshot assembles the per-call context the scorer reads: recent
// capture history, pillar frequency ranking, active projects, and situational
// time fields. A Context is built once per categorization call and never
// mutated afterwards, so it is safe to share across goroutines.
package snapshot

import (
	"sort"
	"time"

	"github.com/kalambet/triage/internal/taxonomy"
)

// RecentWindow is the bounded size of the recent-captures window.
const RecentWindow = 10

// DefaultPillarName resolves captures whose pillar was never recorded.
const DefaultPillarName = "Personal Growth"

// TimeBucket partitions the day for the situational signal.
type TimeBucket string

const (
	Morning   TimeBucket = "morning"
	Afternoon TimeBucket = "afternoon"
	Evening   TimeBucket = "evening"
	Night     TimeBucket = "night"
)

// Capture is one recent capture record with its previously resolved
// categorization.
type Capture struct {
	Text      string
	Pillar    string
	Area      string
	CreatedAt time.Time
}

// Context is the immutable environment for a single categorization call.
type Context struct {
	Recent         []Capture // newest first, at most RecentWindow entries
	TopPillars     []string  // pillar names ranked by usage frequency
	ActiveProjects []string
	TimeOfDay      TimeBucket
	DayOfWeek      time.Weekday
}

// Build assembles a Context from the caller-supplied taxonomy, capture
// history, and clock reading. It is pure: inputs are copied, never mutated.
func Build(tax taxonomy.Snapshot, recent []Capture, activeProjects []string, now time.Time) Context {
	window := recent
	if len(window) > RecentWindow {
		window = window[:RecentWindow]
	}
	captures := make([]Capture, len(window))
	copy(captures, window)
	for i := range captures {
		if captures[i].Pillar == "" {
			captures[i].Pillar = DefaultPillarName
		}
	}

	projects := make([]string, len(activeProjects))
	copy(projects, activeProjects)

	return Context{
		Recent:         captures,
		TopPillars:     rankPillars(tax),
		ActiveProjects: projects,
		TimeOfDay:      BucketFor(now),
		DayOfWeek:      now.Weekday(),
	}
}

// BucketFor maps an hour to its time-of-day bucket. Boundaries are
// closed-open: hour 12 is afternoon, hour 17 is evening.
func BucketFor(now time.Time) TimeBucket {
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 22:
		return Evening
	default:
		return Night
	}
}

// rankPillars orders pillar names by child count (areas plus projects)
// descending. The sort is stable, so ties keep declaration order.
func rankPillars(tax taxonomy.Snapshot) []string {
	type ranked struct {
		name  string
		count int
	}
	rs := make([]ranked, len(tax.Pillars))
	for i, p := range tax.Pillars {
		rs[i] = ranked{name: p.Name, count: taxonomy.ChildCount(p)}
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].count > rs[j].count })

	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.name
	}
	return names
}

package signals

import "strings"

// Domain is a fixed lexicon mapping capture vocabulary to a life domain.
// Terms match capture tokens; Aliases match taxonomy leaf names, so the
// scorer can credit a leaf named "Health & Fitness" when a capture mentions
// a workout. FallbackPillar/FallbackArea are the rule-based categorization
// used when scoring cannot run.
type Domain struct {
	Name           string
	Terms          []string
	Aliases        []string
	FallbackPillar string
	FallbackArea   string
}

// Domains is the fixed rule table, matched in declaration order. It carries
// no learned state: fallback results must be reproducible even when the
// learning store is unavailable.
var Domains = []Domain{
	{
		Name:           "fitness",
		Terms:          []string{"workout", "exercise", "gym", "run", "running", "yoga", "fitness", "health", "doctor", "sleep", "diet", "meal", "stretch", "walk"},
		Aliases:        []string{"health", "fitness", "wellness", "body"},
		FallbackPillar: "Health & Fitness",
		FallbackArea:   "Fitness",
	},
	{
		Name:           "career",
		Terms:          []string{"work", "meeting", "boss", "interview", "resume", "client", "email", "career", "job", "presentation", "report", "standup", "sprint"},
		Aliases:        []string{"career", "work", "professional", "business"},
		FallbackPillar: "Career",
		FallbackArea:   "Work",
	},
	{
		Name:           "finance",
		Terms:          []string{"budget", "money", "invest", "investment", "savings", "bank", "bill", "bills", "taxes", "pay", "salary", "finance", "rent"},
		Aliases:        []string{"finance", "financial", "money", "wealth"},
		FallbackPillar: "Finance",
		FallbackArea:   "Budgeting",
	},
	{
		Name:           "learning",
		Terms:          []string{"learn", "study", "read", "reading", "course", "book", "skill", "practice", "tutorial", "research"},
		Aliases:        []string{"growth", "learning", "education", "knowledge", "development"},
		FallbackPillar: "Personal Growth",
		FallbackArea:   "Learning",
	},
	{
		Name:           "relationships",
		Terms:          []string{"family", "friend", "friends", "dinner", "birthday", "anniversary", "wedding", "visit", "call"},
		Aliases:        []string{"relationships", "social", "family", "friends"},
		FallbackPillar: "Relationships",
		FallbackArea:   "Family",
	},
	{
		Name:           "home",
		Terms:          []string{"clean", "cleaning", "laundry", "grocery", "groceries", "repair", "garden", "house", "apartment", "errand", "errands"},
		Aliases:        []string{"home", "household", "living"},
		FallbackPillar: "Home & Errands",
		FallbackArea:   "Household",
	},
}

// MatchDomains returns the domains whose term lexicon intersects the text's
// tokens, in Domains declaration order.
func MatchDomains(text string) []Domain {
	tokens := Tokenize(text)
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}

	var matched []Domain
	for _, d := range Domains {
		for _, term := range d.Terms {
			if set[term] {
				matched = append(matched, d)
				break
			}
		}
	}
	return matched
}

// MatchesLeafName reports whether any of the domain's aliases appears in the
// given taxonomy name (pillar, area, or project).
func (d Domain) MatchesLeafName(name string) bool {
	lower := strings.ToLower(name)
	for _, alias := range d.Aliases {
		if strings.Contains(lower, alias) {
			return true
		}
	}
	return false
}

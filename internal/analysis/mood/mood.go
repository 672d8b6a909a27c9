package mood

import "strings"

// Mood is the child's current emotional state.
type Mood string

const (
	Happy   Mood = "happy"
	Grumpy  Mood = "grumpy"
	Tantrum Mood = "tantrum"
)

// Cumulative thresholds used by Roll while the child is happy: 5% tantrum,
// then another 10% grumpy.
const (
	TantrumThreshold = 0.05
	GrumpyThreshold  = 0.15
)

// Roll applies the pre-response random swing. r is a uniform draw in [0,1).
// Only a happy child can swing; other moods are returned unchanged.
func Roll(current Mood, r float64) Mood {
	if current != Happy {
		return current
	}
	switch {
	case r < TantrumThreshold:
		return Tantrum
	case r < GrumpyThreshold:
		return Grumpy
	default:
		return Happy
	}
}

type rule struct {
	markers []string
	mood    Mood
}

// Checked in order; the first rule with any marker contained wins. A label
// that mentions crying is never read as happy.
var rules = []rule{
	{markers: []string{"tantrum", "cry"}, mood: Tantrum},
	{markers: []string{"happy", "excited"}, mood: Happy},
	{markers: []string{"grumpy"}, mood: Grumpy},
}

// Classify maps a free-form emotion label from the generator to a mood.
// ok is false when no rule matches and the mood should stay as it is.
func Classify(emotion string) (m Mood, ok bool) {
	normalized := strings.ToLower(emotion)
	if normalized == "" {
		return "", false
	}
	for _, r := range rules {
		for _, marker := range r.markers {
			if strings.Contains(normalized, marker) {
				return r.mood, true
			}
		}
	}
	return "", false
}

package persona

const (
	BillyID = "Billy"
	SarahID = "Sarah"
	BothID  = "Both"
)

// Persona describes one selectable child (or the sibling pair) and the
// fixed presentation details used by prompts, greetings and speech.
type Persona struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Gender           string  `json:"gender,omitempty"`
	Greeting         string  `json:"greeting"`
	GreetingActivity string  `json:"greetingActivity"`
	HairStyle        string  `json:"hairStyle,omitempty"`
	BaseClothes      string  `json:"baseClothes,omitempty"`
	Pitch            float64 `json:"pitch"`
	// RequiresUnlock marks personas that stay hidden until the household
	// has exchanged enough messages.
	RequiresUnlock bool `json:"requiresUnlock"`
}

// Siblings reports whether the persona stands for both children at once.
func (p Persona) Siblings() bool {
	return p.ID == BothID
}

// Seed provides the three selectable children.
func Seed() []Persona {
	return []Persona{
		{
			ID:               BillyID,
			Name:             "Billy",
			Gender:           "boy",
			Greeting:         "Hewo! Pway twuck?",
			GreetingActivity: "Standing and waving",
			HairStyle:        "short curly fade",
			BaseClothes:      "colorful t-shirt and shorts",
			Pitch:            1.3,
		},
		{
			ID:               SarahID,
			Name:             "Sarah",
			Gender:           "girl",
			Greeting:         "Hewo! Want juju?",
			GreetingActivity: "Standing and waving",
			HairStyle:        "curly double puffs with colorful beads",
			BaseClothes:      "cute pastel dress",
			Pitch:            1.5,
		},
		{
			ID:               BothID,
			Name:             "Billy & Sarah",
			Greeting:         "Hewo! We pway!",
			GreetingActivity: "Standing and waving",
			HairStyle:        "curly double puffs with colorful beads",
			BaseClothes:      "cute pastel dress",
			Pitch:            1.5,
			RequiresUnlock:   true,
		},
	}
}

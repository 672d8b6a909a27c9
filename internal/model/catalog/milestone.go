package catalog

const (
	MilestoneFirstWord    = "first_word"
	MilestoneBestFriends  = "best_friends"
	MilestoneFashionista  = "fashionista"
	MilestoneMusician     = "musician"
	MilestoneTantrumTamer = "tantrum_tamer"
	MilestoneGamer        = "gamer"
	MilestoneSmartypants  = "smartypants"
)

// Milestone is a one-way achievement flag.
type Milestone struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
	Icon        string `json:"icon"`
}

// Milestones returns a fresh, fully locked milestone set.
func Milestones() []Milestone {
	return []Milestone{
		{ID: MilestoneFirstWord, Title: "First Chatter", Description: "Exchanged 10 messages.", Icon: "🗣️"},
		{ID: MilestoneBestFriends, Title: "Best Friends", Description: `Unlocked "Both" mode.`, Icon: "👯"},
		{ID: MilestoneFashionista, Title: "Fashionista", Description: "Bought first clothing item.", Icon: "🧢"},
		{ID: MilestoneMusician, Title: "Musician", Description: "Played with a musical toy.", Icon: "🎵"},
		{ID: MilestoneTantrumTamer, Title: "Tantrum Tamer", Description: "Survived a tantrum.", Icon: "🧘"},
		{ID: MilestoneGamer, Title: "Gamer", Description: `Played "Toddler Says".`, Icon: "🎲"},
		{ID: MilestoneSmartypants, Title: "Smartypants", Description: "Played a Learning Game.", Icon: "🎓"},
	}
}

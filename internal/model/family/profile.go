package family

// Role is the parent the user plays.
type Role string

const (
	Momma Role = "Momma"
	Dada  Role = "Dada"
)

// Valid reports whether r is one of the two supported parent roles.
func (r Role) Valid() bool {
	return r == Momma || r == Dada
}

// ParentProfile is the visual description of one parent. Profiles are
// replaced wholesale, never edited field by field.
type ParentProfile struct {
	RaceLabel       string `json:"raceLabel"`
	SkinDescription string `json:"skinDescription"`
	HairDescription string `json:"hairDescription"`
	BodyType        string `json:"bodyType"`
	HairColor       string `json:"hairColor"`
	EyeColor        string `json:"eyeColor"`
	ClothingStyle   string `json:"clothingStyle"`
	HairStyle       string `json:"hairStyle"`
	FacialFeatures  string `json:"facialFeatures"`
}

// Family holds the two independent parent profiles.
type Family struct {
	Mom ParentProfile `json:"mom"`
	Dad ParentProfile `json:"dad"`
}

// RacialTrait bundles the race label with the skin and hair descriptors
// that travel together.
type RacialTrait struct {
	Label string
	Skin  string
	Hair  string
}

var RacialTraits = []RacialTrait{
	{Label: "African American", Skin: "deep rich dark ebony skin tone", Hair: "tightly coiled"},
	{Label: "Hispanic", Skin: "warm tan olive skin tone", Hair: "wavy"},
	{Label: "Caucasian", Skin: "fair pale beige skin tone", Hair: "straight"},
	{Label: "Asian", Skin: "warm beige golden skin tone", Hair: "straight"},
}

var BodyTypes = []string{"average athletic build", "soft plus sized cuddly build"}

var HairColors = []string{"Black", "Brown", "Blonde", "Red", "Grey", "Blue Dyed", "Auburn"}

var EyeColors = []string{"Brown", "Blue", "Green", "Hazel", "Grey"}

var ClothingStyles = []string{
	"Casual (T-shirt/Jeans)", "Business (Suit)", "Comfy (Sweats)", "Boho (Flowy)",
	"Athletic (Sporty)", "Hipster", "Work Uniform",
}

var HairStyles = []string{
	"Long Straight", "Short Curly", "Bald", "Bob Cut", "Messy Bun", "Crew Cut",
	"Dreads", "Braids", "Afro", "Ponytail", "Spiky", "Wavy Shoulder-length",
}

var FacialFeatures = []string{
	"None", "Freckles", "Dimples", "Glasses", "Beard", "Mustache", "Goatee", "Nose Ring", "Kind Smile",
}

// Default is the family shown before the first randomization.
func Default() Family {
	return Family{
		Mom: ParentProfile{
			RaceLabel:       "African American",
			SkinDescription: "deep rich dark mahogany skin",
			HairDescription: "tightly coiled",
			BodyType:        "average build",
			HairColor:       "Black",
			EyeColor:        "Brown",
			ClothingStyle:   "Casual (T-shirt/Jeans)",
			HairStyle:       "Afro",
			FacialFeatures:  "Dimples",
		},
		Dad: ParentProfile{
			RaceLabel:       "Caucasian",
			SkinDescription: "fair beige skin",
			HairDescription: "straight",
			BodyType:        "average build",
			HairColor:       "Brown",
			EyeColor:        "Blue",
			ClothingStyle:   "Athletic (Sporty)",
			HairStyle:       "Crew Cut",
			FacialFeatures:  "Beard",
		},
	}
}

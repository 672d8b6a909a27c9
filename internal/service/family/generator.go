package family

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/toddler-chat/backend/internal/model/family"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/persona"
	"github.com/zhouzirui/toddler-chat/backend/internal/random"
)

// Generator draws parent profiles from the trait catalogs.
type Generator struct {
	rng random.Source
}

// NewGenerator returns a generator drawing from rng.
func NewGenerator(rng random.Source) *Generator {
	return &Generator{rng: rng}
}

func pick[T any](rng random.Source, items []T) T {
	return items[rng.IntN(len(items))]
}

// Randomize produces a fresh pair of parents. Both profiles are drawn in
// full before a coin flip decides which one becomes the mom.
func (g *Generator) Randomize() family.Family {
	first := pick(g.rng, family.RacialTraits)
	second := pick(g.rng, family.RacialTraits)

	p1 := g.profile(first)
	p2 := g.profile(second)

	if g.rng.Float64() > 0.5 {
		return family.Family{Mom: p1, Dad: p2}
	}
	return family.Family{Mom: p2, Dad: p1}
}

func (g *Generator) profile(trait family.RacialTrait) family.ParentProfile {
	return family.ParentProfile{
		RaceLabel:       trait.Label,
		SkinDescription: trait.Skin,
		HairDescription: trait.Hair,
		BodyType:        pick(g.rng, family.BodyTypes),
		HairColor:       pick(g.rng, family.HairColors),
		EyeColor:        pick(g.rng, family.EyeColors),
		ClothingStyle:   pick(g.rng, family.ClothingStyles),
		HairStyle:       pick(g.rng, family.HairStyles),
		FacialFeatures:  pick(g.rng, family.FacialFeatures),
	}
}

type skinBlend struct {
	all  []string
	any  []string
	tone string
}

// First match wins.
var skinBlends = []skinBlend{
	{all: []string{"ebony", "pale"}, tone: "rich warm caramel brown skin"},
	{all: []string{"ebony"}, any: []string{"tan", "olive"}, tone: "deep rich bronze skin"},
	{all: []string{"ebony", "golden"}, tone: "warm mocha brown skin"},
	{all: []string{"ebony"}, tone: "deep dark rich ebony skin"},
	{all: []string{"olive", "pale"}, tone: "sun-kissed tan skin"},
	{all: []string{"olive"}, tone: "warm olive skin"},
	{all: []string{"golden"}, tone: "golden brown skin"},
}

const defaultSkinTone = "warm beige skin"

func (b skinBlend) matches(skins string) bool {
	for _, s := range b.all {
		if !strings.Contains(skins, s) {
			return false
		}
	}
	if len(b.any) == 0 {
		return true
	}
	for _, s := range b.any {
		if strings.Contains(skins, s) {
			return true
		}
	}
	return false
}

// SkinTone blends the two parents' skin descriptors into the child's.
func SkinTone(fam family.Family) string {
	skins := fam.Mom.SkinDescription + " " + fam.Dad.SkinDescription
	for _, b := range skinBlends {
		if b.matches(skins) {
			return b.tone
		}
	}
	return defaultSkinTone
}

// ToddlerAppearance renders the appearance sentence used in image prompts.
func ToddlerAppearance(fam family.Family, child persona.Persona) string {
	tone := SkinTone(fam)
	if child.Siblings() {
		return fmt.Sprintf("mixed race brother and sister twins, %s, %s and %s features.",
			tone, fam.Mom.RaceLabel, fam.Dad.RaceLabel)
	}
	gender := child.Gender
	if gender == "" {
		gender = "girl"
	}
	return fmt.Sprintf("mixed race 2-year-old %s, %s, %s %s hair. Detailed expressive face, %s and %s features.",
		gender, tone, child.HairStyle, fam.Dad.HairColor, fam.Mom.RaceLabel, fam.Dad.RaceLabel)
}

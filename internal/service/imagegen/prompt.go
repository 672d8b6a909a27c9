package imagegen

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/toddler-chat/backend/internal/model/persona"
)

// Request describes the picture of one child reply.
type Request struct {
	Child      persona.Persona
	Activity   string
	Mood       string
	Appearance string
	// Extras lists worn and held items, e.g. "wearing Red Cap, ".
	Extras string
}

type moodStyle struct {
	lighting   string
	expression string
}

func styleFor(mood string) moodStyle {
	switch mood {
	case "tantrum", "angry":
		return moodStyle{"dramatic contrast lighting, chaotic atmosphere", "crying screaming face red"}
	case "grumpy", "sad":
		return moodStyle{"neutral lighting, slightly desaturated", "pouting grumpy face crossed arms"}
	default:
		return moodStyle{"soft warm lighting, bright colors, happy atmosphere", "happy"}
	}
}

func skinHint(appearance string) string {
	if strings.Contains(appearance, "ebony") || strings.Contains(appearance, "dark") {
		return "Ensure deep rich skin tone, do not lighten."
	}
	return ""
}

// BuildPrompt renders the image prompt: appearance first, then activity,
// then mood.
func BuildPrompt(req Request) string {
	style := styleFor(req.Mood)
	hint := skinHint(req.Appearance)

	if req.Child.Siblings() {
		return fmt.Sprintf(`A cinematic, realistic photo of TWO 2-year-old toddlers (a boy and a girl) playing together.
VISUAL FEATURES: %s. %s
ACTION: The children are %s.
EXPRESSION: %s.
STYLE: %s, domestic or park setting, high quality, 4k.`,
			req.Appearance, hint, req.Activity, style.expression, style.lighting)
	}

	gender := req.Child.Gender
	if gender == "" {
		gender = "girl"
	}
	clothing := req.Extras
	if clothing == "" {
		clothing = req.Child.BaseClothes
	}
	return fmt.Sprintf(`A cinematic, realistic photo of a 2-year-old %s named %s.
VISUAL FEATURES: %s. %s
CLOTHING: %s.
ACTION: The child is %s.
EXPRESSION: %s.
STYLE: %s, domestic setting, high quality, 4k.`,
		gender, req.Child.Name, req.Appearance, hint, clothing, req.Activity, style.expression, style.lighting)
}

// Extras renders the equipped items the way image prompts expect them.
func Extras(clothing, toy string) string {
	var b strings.Builder
	if clothing != "" {
		fmt.Fprintf(&b, "wearing %s, ", clothing)
	}
	if toy != "" {
		fmt.Fprintf(&b, "playing with %s, ", toy)
	}
	return b.String()
}

// Package profanity rejects disallowed vocabulary before it reaches the
// dialogue engine.
package profanity

import "strings"

// FilteredPlaceholder replaces a rejected user message in the transcript.
const FilteredPlaceholder = "*** [Language Filtered] ***"

// Denylist is matched as plain substrings, so "hell" also catches "shell".
var Denylist = []string{
	"fuck", "shit", "bitch", "ass", "damn", "hell",
	"crap", "stupid", "hate", "kill", "die", "ugly",
}

// Filter matches text against a fixed list of lowercase words.
type Filter struct {
	words []string
}

// New builds a filter over the given words. With no words it uses Denylist.
func New(words ...string) *Filter {
	if len(words) == 0 {
		words = Denylist
	}
	lowered := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			lowered = append(lowered, w)
		}
	}
	return &Filter{words: lowered}
}

// Contains reports whether text includes any denylisted word, ignoring case.
func (f *Filter) Contains(text string) bool {
	normalized := strings.ToLower(text)
	for _, w := range f.words {
		if strings.Contains(normalized, w) {
			return true
		}
	}
	return false
}

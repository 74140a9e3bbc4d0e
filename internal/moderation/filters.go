package moderation

import (
	"strings"

	textutil "github.com/iamwavecut/ngwarden/internal/utils/text"
)

// MatchWordFilter returns the first filter contained in text, case-insensitively.
// Cyrillic lookalikes inside Latin words are folded first, so "cаsino" still matches "casino".
func MatchWordFilter(text string, filters []string) (string, bool) {
	if len(filters) == 0 || text == "" {
		return "", false
	}
	folded := textutil.FoldLookalikes(text)
	for _, word := range filters {
		if word != "" && strings.Contains(folded, word) {
			return word, true
		}
	}
	return "", false
}

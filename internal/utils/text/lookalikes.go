package text

import "strings"

// cyrillicLookalikes maps lowercase Cyrillic letters to the Latin letters they imitate.
var cyrillicLookalikes = map[rune]rune{
	'а': 'a',
	'в': 'b',
	'е': 'e',
	'ё': 'e',
	'к': 'k',
	'м': 'm',
	'н': 'h',
	'о': 'o',
	'р': 'p',
	'с': 'c',
	'т': 't',
	'у': 'y',
	'х': 'x',
	'і': 'i',
	'ј': 'j',
	'ѕ': 's',
}

// HasCyrillics checks if the given string contains any Cyrillic characters
func HasCyrillics(content string) bool {
	for _, r := range content {
		if r >= 0x0400 && r <= 0x04FF {
			return true
		}
	}
	return false
}

// FoldLookalikes lowercases content and, in words mixing Latin and Cyrillic letters,
// replaces the Cyrillic lookalikes with their Latin counterparts.
// Words written entirely in Cyrillic are left alone.
func FoldLookalikes(content string) string {
	lowered := strings.ToLower(content)
	if !HasCyrillics(lowered) {
		return lowered
	}

	var b strings.Builder
	b.Grow(len(lowered))
	start := 0
	for i, r := range lowered {
		if r == ' ' || r == '\n' || r == '\t' {
			b.WriteString(foldWord(lowered[start:i]))
			b.WriteRune(r)
			start = i + 1
		}
	}
	b.WriteString(foldWord(lowered[start:]))
	return b.String()
}

func foldWord(word string) string {
	var latin, cyrillic bool
	for _, r := range word {
		switch {
		case r >= 'a' && r <= 'z':
			latin = true
		case r >= 0x0400 && r <= 0x04FF:
			cyrillic = true
		}
	}
	if !latin || !cyrillic {
		return word
	}
	return strings.Map(func(r rune) rune {
		if latinRune, ok := cyrillicLookalikes[r]; ok {
			return latinRune
		}
		return r
	}, word)
}

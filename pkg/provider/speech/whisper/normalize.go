package whisper

import (
	"strings"
	"unicode"
)

// normalize lowercases text and strips punctuation so whisper output matches
// the plain lowercase tokens other engines produce. When grammar is non-nil
// only tokens contained in it survive.
func normalize(text string, grammar map[string]struct{}) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			return unicode.ToLower(r)
		case unicode.IsSpace(r), unicode.IsPunct(r):
			return ' '
		default:
			return -1
		}
	}, text)

	fields := strings.Fields(cleaned)
	if grammar == nil {
		return strings.Join(fields, " ")
	}
	kept := fields[:0]
	for _, f := range fields {
		if _, ok := grammar[f]; ok {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// grammarSet builds the lookup set for a recognizer grammar. It returns nil
// for an unrestricted recognizer.
func grammarSet(words []string) map[string]struct{} {
	if len(words) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		for _, f := range strings.Fields(strings.ToLower(w)) {
			set[f] = struct{}{}
		}
	}
	return set
}

package intent

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	bareLetters = regexp.MustCompile(`^[a-zA-Z\x{0621}-\x{064A}]{1,3}$`)

	shortWords = map[string]bool{"ok": true, "no": true, "hi": true}
)

// IsMeaningless reports whether text carries nothing worth classifying:
// fewer than two characters, punctuation only, or one to three bare letters
// other than a few common short words.
func IsMeaningless(text string) bool {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < 2 {
		return true
	}

	onlyMarks := true
	for _, r := range text {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			onlyMarks = false
			break
		}
	}
	if onlyMarks {
		return true
	}

	return bareLetters.MatchString(text) && !shortWords[strings.ToLower(text)]
}

package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// titleWordLimit caps how many leading words a derived title keeps.
const titleWordLimit = 6

// Words splits narration text into its word sequence. Words are
// whitespace-delimited runs with surrounding punctuation kept intact, the
// same shape the aligner reports per-word timestamps for. Cue word positions
// index this sequence.
func Words(text string) []string {
	return strings.Fields(text)
}

// WordCount returns the number of words in the narration text.
func WordCount(text string) int {
	return len(Words(text))
}

// ReferenceText reconstructs the alignment reference string from a word
// sequence, joining with single spaces.
func ReferenceText(words []string) string {
	return strings.Join(words, " ")
}

// DeriveTitle builds a display title from the opening words of a narration
// body. Punctuation is stripped, the first few words are kept, and the
// result is title-cased. Returns "Untitled" when the body yields nothing.
func DeriveTitle(body string) string {
	words := Words(body)
	kept := make([]string, 0, titleWordLimit)
	for _, word := range words {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			return !isWordRune(r)
		})
		if cleaned == "" {
			continue
		}
		kept = append(kept, cleaned)
		if len(kept) == titleWordLimit {
			break
		}
	}
	if len(kept) == 0 {
		return "Untitled"
	}
	return cases.Title(language.Und).String(strings.Join(kept, " "))
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	}
	return false
}

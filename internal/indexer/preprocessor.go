package indexer

import (
	"strings"
	"unicode"
)

// invisible runes that survive copy-paste from PDFs and spreadsheets.
var invisible = map[rune]bool{
	'\u00ad': true, // soft hyphen
	'\u200b': true, // zero width space
	'\ufeff': true, // byte order mark
}

// CleanText prepares imported title and abstract text for storage and
// embedding. Invalid UTF-8 becomes U+FFFD, C0 and C1 control characters and a
// few invisible runes are dropped, and whitespace runs collapse to one space.
func CleanText(text string) string {
	text = strings.ToValidUTF8(text, "\uFFFD")
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsControl(r), invisible[r]:
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

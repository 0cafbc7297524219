package search

import (
	"strings"
	"unicode/utf8"
)

// snippetLen caps how much chunk text a result carries.
const snippetLen = 200

// buildSnippet trims chunk text to a short preview, breaking at a word
// boundary where one falls close enough to the cap.
func buildSnippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= snippetLen {
		return text
	}

	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if idx := strings.LastIndexByte(text[:cut], ' '); idx > snippetLen/2 {
		cut = idx
	}
	return strings.TrimRight(text[:cut], " ") + "..."
}

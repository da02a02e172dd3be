package utils

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces every run of whitespace (spaces, tabs, newlines)
// with a single space and trims the ends. Extracted page text goes through
// this before hashing so that markup reflow does not register as a change.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// TruncateWithMarker caps s at max bytes and appends marker when content was
// dropped. Cuts at a rune boundary so the result stays valid UTF-8.
func TruncateWithMarker(s string, max int, marker string) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

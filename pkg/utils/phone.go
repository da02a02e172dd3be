package utils

import (
	"regexp"
	"strings"
)

var (
	phoneJunkRe  = regexp.MustCompile(`[^\d+]`)
	usLocalDigit = 10
)

// NormalizePhoneNumber normalizes a phone number into a canonical format.
// Rules:
// - keep leading '+' if present, otherwise assume +1 for 10-digit US numbers
// - remove all spaces and punctuation
// - preserve country code when possible
func NormalizePhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	clean := phoneJunkRe.ReplaceAllString(phone, "")

	if strings.HasPrefix(clean, "+") {
		return clean
	}
	if len(clean) == usLocalDigit {
		return "+1" + clean
	}
	if len(clean) == usLocalDigit+1 && strings.HasPrefix(clean, "1") {
		return "+" + clean
	}
	return "+" + clean
}

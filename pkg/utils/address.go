package utils

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nonWordRe  = regexp.MustCompile(`[^\w\s]`)
	leadNumRe  = regexp.MustCompile(`^\d+`)
	zipRe      = regexp.MustCompile(`\b\d{5}(-\d{4})?\b`)
	leadNumCut = regexp.MustCompile(`^\d+\s*`)
	zipTailCut = regexp.MustCompile(`\s+\d{5}(-\d{4})?\b.*$`)
)

var streetAbbr = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"boulevard": "blvd",
	"road":      "rd",
	"drive":     "dr",
	"lane":      "ln",
	"court":     "ct",
	"place":     "pl",
	"square":    "sq",
	"highway":   "hwy",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
	"northeast": "ne",
	"northwest": "nw",
	"southeast": "se",
	"southwest": "sw",
}

// NormalizeAddress normalizes a postal address string for comparison.
// Lowercases, trims, replaces common words with abbreviations, and strips punctuation.
func NormalizeAddress(address string) string {
	if address == "" {
		return ""
	}

	n := strings.ToLower(strings.TrimSpace(address))

	words := strings.Fields(n)
	for i, w := range words {
		w = nonWordRe.ReplaceAllString(w, "")
		if a, ok := streetAbbr[w]; ok {
			w = a
		}
		words[i] = w
	}
	return strings.Join(words, " ")
}

// AddressParts holds the pieces of an address line that location rules care
// about: the leading street number, the street name (normalized, city and zip
// stripped), and the 5-digit zip when present.
type AddressParts struct {
	Number int
	Street string
	Zip    string
}

// ParseAddress splits an address line into the parts used by street-range and
// zip rules. Number is 0 when the line has no leading number. The street name
// is taken from the text before the first comma so that city and state do not
// leak into prefix matches.
func ParseAddress(address string) AddressParts {
	var parts AddressParts
	line := strings.ToLower(strings.TrimSpace(address))
	if line == "" {
		return parts
	}

	if m := zipRe.FindString(line); m != "" {
		parts.Zip = m[:5]
	}
	if i := strings.Index(line, ","); i >= 0 {
		line = line[:i]
	}

	n := NormalizeAddress(line)
	if m := leadNumRe.FindString(n); m != "" {
		if v, err := strconv.Atoi(m); err == nil {
			parts.Number = v
		}
	}

	street := leadNumCut.ReplaceAllString(n, "")
	street = zipTailCut.ReplaceAllString(street, "")
	parts.Street = strings.TrimSpace(street)
	return parts
}

package delta

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"venue-intel-pipeline/pkg/utils"
)

// The normalizer is what keeps nightly deltas quiet. Venue sites re-render
// timestamps, analytics snippets and session tokens on every request; without
// stripping them, essentially every venue hashes as "changed" every day.
// Rules are named so config can disable individual ones when a rule eats a
// real signal for some site.
type rule struct {
	name string
	re   *regexp.Regexp
}

const monthNames = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

const weekdayNames = `(?:mon(?:day)?|tue(?:s(?:day)?)?|wed(?:nesday)?|thu(?:r(?:s(?:day)?)?)?|fri(?:day)?|sat(?:urday)?|sun(?:day)?)`

// Order matters: weekday-date must run before month-day, otherwise the
// month-day rule consumes its tail and leaves the bare weekday behind.
var allRules = []rule{
	{"iso-timestamps", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d{1,3})?)?Z?)?\b`)},
	{"weekday-dates", regexp.MustCompile(`(?i)\b` + weekdayNames + `\.?,?\s+` + monthNames + `\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`)},
	{"month-day", regexp.MustCompile(`(?i)\b` + monthNames + `\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`)},
	{"analytics-tags", regexp.MustCompile(`\b(?:UA-\d{4,10}(?:-\d{1,4})?|G-[A-Z0-9]{6,14})\b`)},
	{"gtm-ids", regexp.MustCompile(`(?i)\bgtm-[a-z0-9]{4,10}\b`)},
	{"session-tokens", regexp.MustCompile(`(?i)\b(?:jsessionid|phpsessid|session_?id|sid)=[a-z0-9_\-]{8,}|\b[a-f0-9]{32,64}\b`)},
	{"copyright-footers", regexp.MustCompile(`(?i)(?:copyright\s*(?:©|\(c\))?|©)\s*[^\n]*|all rights reserved\.?`)},
	{"tracking-params", regexp.MustCompile(`(?i)[?&](?:fbclid|gclid|msclkid|mc_cid|mc_eid|gad_source|utm_[a-z]+)=[^\s&"']*`)},
	{"loading-placeholders", regexp.MustCompile(`(?i)\bloading[^\n.!?]{0,40}(?:\.{2,3}|…)`)},
}

// Normalize strips volatile substrings then collapses whitespace, producing
// the canonical form that feeds the venue hash. enabled lists rule names to
// apply; nil or empty means all rules.
func Normalize(text string, enabled []string) string {
	return normalizeAt(text, enabled, time.Now().Year())
}

func normalizeAt(text string, enabled []string, year int) string {
	var want map[string]bool
	if len(enabled) > 0 {
		want = make(map[string]bool, len(enabled))
		for _, n := range enabled {
			want[n] = true
		}
	}

	out := text
	for _, r := range allRules {
		if want != nil && !want[r.name] {
			continue
		}
		out = r.re.ReplaceAllString(out, " ")
	}
	if want == nil || want["year-tokens"] {
		// Standalone occurrences of the current year: footers bump them at
		// New Year and many templates print them per-request.
		yearRe := regexp.MustCompile(fmt.Sprintf(`\b%d\b`, year))
		out = yearRe.ReplaceAllString(out, " ")
	}
	return utils.CollapseWhitespace(out)
}

// RuleNames lists every built-in rule, for config validation and status
// output. "year-tokens" is synthesized per-run from the current year.
func RuleNames() []string {
	names := make([]string, 0, len(allRules)+1)
	for _, r := range allRules {
		names = append(names, r.name)
	}
	return append(names, "year-tokens")
}

// VenueHash computes the delta hash for one venue: md5 over the normalized
// text of every page joined by a fixed separator. Page order is the document
// order, which the merger already made deterministic.
func VenueHash(texts []string, enabled []string) string {
	norm := make([]string, 0, len(texts))
	for _, t := range texts {
		norm = append(norm, Normalize(t, enabled))
	}
	return utils.MD5Hex(strings.Join(norm, "\n---\n"), 0)
}

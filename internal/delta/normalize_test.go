package delta

import (
	"strings"
	"testing"
)

func TestNormalizeStripsVolatileNoise(t *testing.T) {
	cases := []struct {
		name string
		in   string
		gone []string
		kept []string
	}{
		{
			name: "iso timestamps",
			in:   "Last updated 2024-06-03T12:30:45Z. Happy Hour 4-7pm daily.",
			gone: []string{"2024-06-03"},
			kept: []string{"Happy Hour 4-7pm daily."},
		},
		{
			name: "weekday dates",
			in:   "Closed Monday, June 3rd for a private event",
			gone: []string{"Monday", "June"},
			kept: []string{"Closed", "private event"},
		},
		{
			name: "month day with year",
			in:   "Trivia returns Sep 12th, 2025 at the bar",
			gone: []string{"Sep 12th"},
			kept: []string{"Trivia returns", "at the bar"},
		},
		{
			name: "analytics tags",
			in:   "menu UA-12345678-1 and G-ABC123XYZ tail",
			gone: []string{"UA-12345678-1", "G-ABC123XYZ"},
			kept: []string{"menu", "tail"},
		},
		{
			name: "gtm ids",
			in:   "container GTM-AB12CD loaded",
			gone: []string{"GTM-AB12CD"},
			kept: []string{"container", "loaded"},
		},
		{
			name: "session tokens",
			in:   "cart sessionid=a1b2c3d4e5f6 total $12",
			gone: []string{"a1b2c3d4e5f6"},
			kept: []string{"cart", "total $12"},
		},
		{
			name: "bare hex tokens",
			in:   "nonce 0123456789abcdef0123456789abcdef end",
			gone: []string{"0123456789abcdef"},
			kept: []string{"nonce", "end"},
		},
		{
			name: "copyright footers",
			in:   "Happy Hour daily\nCopyright © The Griffon. All rights reserved.",
			gone: []string{"Copyright", "Griffon"},
			kept: []string{"Happy Hour daily"},
		},
		{
			name: "tracking params",
			in:   "See https://griffon.com/menu?utm_source=ig&gclid=abc123 for details",
			gone: []string{"utm_source", "gclid"},
			kept: []string{"https://griffon.com/menu", "for details"},
		},
		{
			name: "loading placeholders",
			in:   "Loading specials… $5 drafts all night",
			gone: []string{"Loading"},
			kept: []string{"$5 drafts all night"},
		},
		{
			name: "standalone current year",
			in:   "Serving Charleston since 1952. 2026 season menu.",
			gone: []string{"2026"},
			kept: []string{"1952", "season menu."},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := normalizeAt(tc.in, nil, 2026)
			for _, g := range tc.gone {
				if strings.Contains(out, g) {
					t.Errorf("%q should be stripped, got %q", g, out)
				}
			}
			for _, k := range tc.kept {
				if !strings.Contains(out, k) {
					t.Errorf("%q should survive, got %q", k, out)
				}
			}
		})
	}
}

// A weekday next to a date is noise, but a weekday naming a recurring schedule
// is the whole point of the corpus. The combined weekday-date rule has to win
// before month-day fires, or the bare weekday is left stranded.
func TestNormalizeWeekdayDateRuleRunsFirst(t *testing.T) {
	in := "Closed Monday, June 3rd for a buyout"

	all := normalizeAt(in, nil, 2026)
	if all != "Closed for a buyout" {
		t.Fatalf("full rule set: got %q", all)
	}

	monthOnly := normalizeAt(in, []string{"month-day"}, 2026)
	if !strings.Contains(monthOnly, "Monday") {
		t.Fatalf("month-day alone should strand the weekday, got %q", monthOnly)
	}
}

func TestNormalizeBareWeekdaysSurvive(t *testing.T) {
	in := "Happy Hour Monday through Friday 4 to 7"
	if out := normalizeAt(in, nil, 2026); out != in {
		t.Fatalf("schedule text must be untouched, got %q", out)
	}
}

func TestNormalizeEnabledSubset(t *testing.T) {
	in := "2024-01-05 special UA-12345678 menu"
	out := normalizeAt(in, []string{"iso-timestamps"}, 2026)
	if strings.Contains(out, "2024-01-05") {
		t.Fatalf("enabled rule did not run: %q", out)
	}
	if !strings.Contains(out, "UA-12345678") {
		t.Fatalf("disabled rule ran anyway: %q", out)
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	out := normalizeAt("  Happy\n\nHour\t\t4-7  ", nil, 2026)
	if out != "Happy Hour 4-7" {
		t.Fatalf("got %q", out)
	}
}

func TestVenueHashIgnoresVolatileNoise(t *testing.T) {
	a := VenueHash([]string{
		"Happy Hour 4-7pm\nUpdated 2024-06-01T10:00:00Z",
		"Menu\nGTM-AB12CD",
	}, nil)
	b := VenueHash([]string{
		"Happy Hour 4-7pm\nUpdated 2024-06-02T23:59:00Z",
		"Menu\nGTM-XY99ZZ",
	}, nil)
	if a != b {
		t.Fatalf("noise-only difference changed the hash: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("want full md5 hex, got %d chars", len(a))
	}

	c := VenueHash([]string{
		"Happy Hour 3-6pm\nUpdated 2024-06-01T10:00:00Z",
		"Menu\nGTM-AB12CD",
	}, nil)
	if a == c {
		t.Fatal("real schedule change did not move the hash")
	}
}

func TestVenueHashPageOrderMatters(t *testing.T) {
	a := VenueHash([]string{"menu", "events"}, nil)
	b := VenueHash([]string{"events", "menu"}, nil)
	if a == b {
		t.Fatal("page order must feed the hash")
	}
}

func TestRuleNames(t *testing.T) {
	names := RuleNames()
	if len(names) != len(allRules)+1 {
		t.Fatalf("want %d names, got %d", len(allRules)+1, len(names))
	}
	if names[len(names)-1] != "year-tokens" {
		t.Fatalf("year-tokens must be listed last, got %v", names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			t.Fatalf("duplicate rule name %q", n)
		}
		seen[n] = true
	}
	if !seen["iso-timestamps"] || !seen["copyright-footers"] {
		t.Fatalf("expected built-ins missing from %v", names)
	}
}

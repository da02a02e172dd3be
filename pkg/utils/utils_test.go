package utils

import (
	"strings"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		expected AddressParts
	}{
		{
			"Full line with city and zip",
			"456 King St, Charleston, SC 29403",
			AddressParts{Number: 456, Street: "king st", Zip: "29403"},
		},
		{
			"Long form street word",
			"2100 King Street, Charleston, SC",
			AddressParts{Number: 2100, Street: "king st"},
		},
		{
			"No leading number",
			"Meeting Street, Charleston SC 29401",
			AddressParts{Number: 0, Street: "meeting st", Zip: "29401"},
		},
		{
			"Zip plus four",
			"10 Storehouse Row, Charleston, SC 29405-1234",
			AddressParts{Number: 10, Street: "storehouse row", Zip: "29405"},
		},
		{
			"No commas at all",
			"77 Pittsburgh Ave North Charleston",
			AddressParts{Number: 77, Street: "pittsburgh ave n charleston"},
		},
		{
			"Empty input",
			"",
			AddressParts{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAddress(tt.address)
			if got != tt.expected {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.address, got, tt.expected)
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Abbreviates street words", "123 East Bay Street", "123 e bay st"},
		{"Strips punctuation", "123 King St., Suite #4", "123 king st suite 4"},
		{"Collapses case and space", "  456  MEETING   STREET ", "456 meeting st"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAddress(tt.input); got != tt.expected {
				t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCandidateURLs(t *testing.T) {
	paths := []string{"/menu", "/specials", "/happy-hour"}

	t.Run("Expands against origin", func(t *testing.T) {
		got := CandidateURLs("https://www.thegrocerycharleston.com/about?utm_source=x", paths)
		want := []string{
			"https://thegrocerycharleston.com/about",
			"https://thegrocerycharleston.com/menu",
			"https://thegrocerycharleston.com/specials",
			"https://thegrocerycharleston.com/happy-hour",
		}
		if len(got) != len(want) {
			t.Fatalf("CandidateURLs returned %d URLs, want %d: %v", len(got), len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("candidate[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("No duplicate when site is a candidate path", func(t *testing.T) {
		got := CandidateURLs("edmundsoast.com/menu", paths)
		count := 0
		for _, u := range got {
			if strings.HasSuffix(u, "/menu") {
				count++
			}
		}
		if count != 1 {
			t.Errorf("expected /menu exactly once, got %d in %v", count, got)
		}
	})

	t.Run("Unparsable site", func(t *testing.T) {
		if got := CandidateURLs("", paths); got != nil {
			t.Errorf("CandidateURLs(\"\") = %v, want nil", got)
		}
	})
}

func TestStripTrackingParams(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			"Removes utm family",
			"https://x.com/menu?utm_source=a&utm_medium=b&id=7",
			"https://x.com/menu?id=7",
		},
		{
			"Removes fbclid keeps order",
			"https://x.com/?a=1&fbclid=zzz&b=2",
			"https://x.com/?a=1&b=2",
		},
		{
			"No query untouched",
			"https://x.com/menu",
			"https://x.com/menu",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTrackingParams(tt.input); got != tt.expected {
				t.Errorf("StripTrackingParams(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		normalized string
	}{
		{"Bare domain", "Example.com", "https://example.com"},
		{"Strips www and slash", "https://www.example.com/", "https://example.com"},
		{"Keeps path", "http://example.com/menu/", "http://example.com/menu"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.input); got != tt.normalized {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.normalized)
			}
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Tabs and newlines", "half\toff\n\nwings", "half off wings"},
		{"Leading and trailing", "  menu  ", "menu"},
		{"Already collapsed", "happy hour", "happy hour"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CollapseWhitespace(tt.input); got != tt.expected {
				t.Errorf("CollapseWhitespace(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTruncateWithMarker(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{"Under cap unchanged", "short", 10, "short"},
		{"Over cap marked", "abcdefghij", 4, "abcd[TRUNCATED]"},
		{"Rune boundary respected", "héllo", 2, "h[TRUNCATED]"},
		{"Zero cap unchanged", "abc", 0, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateWithMarker(tt.input, tt.max, "[TRUNCATED]"); got != tt.expected {
				t.Errorf("TruncateWithMarker(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.expected)
			}
		})
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"US formatted", "(843) 555-0134", "+18435550134"},
		{"Already canonical", "+18435550134", "+18435550134"},
		{"Leading country digit", "1 843 555 0134", "+18435550134"},
		{"International", "+44 20 7946 0958", "+442079460958"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhoneNumber(tt.input); got != tt.expected {
				t.Errorf("NormalizePhoneNumber(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func BenchmarkParseAddress(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ParseAddress("456 King St, Charleston, SC 29403")
	}
}

func BenchmarkCandidateURLs(b *testing.B) {
	paths := []string{"/menu", "/specials", "/happy-hour", "/events", "/about"}
	for i := 0; i < b.N; i++ {
		CandidateURLs("https://www.example.com", paths)
	}
}

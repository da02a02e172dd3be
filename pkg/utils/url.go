package utils

import (
	"net/url"
	"regexp"
	"strings"
)

var wwwPrefixRe = regexp.MustCompile(`^(https?://)www\.`)

// Query parameters that identify the click, not the page. Stripped before a
// URL is stored or fetched so the same page hashes to the same location.
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"msclkid":      true,
	"mc_cid":       true,
	"mc_eid":       true,
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
}

// NormalizeURL lowercases, adds protocol if missing, removes common prefixes and trailing slash.
// Intended for comparing websites from different sources where formatting varies.
func NormalizeURL(u string) string {
	if u == "" {
		return ""
	}

	n := strings.ToLower(strings.TrimSpace(u))
	if !strings.HasPrefix(n, "http://") && !strings.HasPrefix(n, "https://") {
		n = "https://" + n
	}
	n = wwwPrefixRe.ReplaceAllString(n, "$1")
	n = strings.TrimSuffix(n, "/")
	return n
}

// Origin returns the scheme://host prefix of a URL, with no path.
// Returns "" when the input cannot be parsed as an absolute URL.
func Origin(u string) string {
	parsed, err := url.Parse(NormalizeURL(u))
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// CandidateURLs expands a venue website into the set of URLs worth fetching:
// the site itself plus each well-known path resolved against the site origin.
// Duplicates collapse (a site whose URL already is /menu does not get /menu
// twice) and an unparsable site yields nil.
func CandidateURLs(site string, paths []string) []string {
	origin := Origin(site)
	if origin == "" {
		return nil
	}

	base := StripTrackingParams(NormalizeURL(site))
	seen := map[string]bool{base: true}
	out := []string{base}
	for _, p := range paths {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		candidate := origin + p
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		out = append(out, candidate)
	}
	return out
}

// StripTrackingParams removes analytics query parameters from a URL, leaving
// the rest of the query intact and in its original order.
func StripTrackingParams(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.RawQuery == "" {
		return u
	}

	kept := make([]string, 0)
	for _, pair := range strings.Split(parsed.RawQuery, "&") {
		key := pair
		if i := strings.Index(pair, "="); i >= 0 {
			key = pair[:i]
		}
		if !trackingParams[strings.ToLower(key)] {
			kept = append(kept, pair)
		}
	}
	parsed.RawQuery = strings.Join(kept, "&")
	return parsed.String()
}

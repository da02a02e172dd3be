// Package areas assigns venues to named neighborhoods. Free-text address
// parsing is noisy, sublocality is reliable but often missing, and bounding
// boxes overlap, so classification runs a priority cascade of rules from
// most to least authoritative, first match wins.
package areas

import (
	"sort"
	"strings"

	"venue-intel-pipeline/pkg/geography"
	"venue-intel-pipeline/pkg/utils"
)

// Candidate carries the geographic signals available for one venue. Any
// field may be zero; the cascade skips rules whose inputs are missing.
type Candidate struct {
	Lat, Lng    float64
	Address     string // full formatted address
	Sublocality string // provider sublocality component, "" when absent
	Zip         string // 5-digit zip, "" when absent
}

// Classifier maps candidates to configured area names. Safe for concurrent
// use; Classify is pure.
type Classifier struct {
	set      *geography.AreaSet
	smallest []geography.Area
	keywords []string // area keyword needles, longest first
}

// NewClassifier builds a classifier over the loaded area configuration.
func NewClassifier(set *geography.AreaSet) *Classifier {
	keywords := make([]string, 0, len(areaKeywords))
	for k := range areaKeywords {
		keywords = append(keywords, k)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if len(keywords[i]) != len(keywords[j]) {
			return len(keywords[i]) > len(keywords[j])
		}
		return keywords[i] < keywords[j]
	})

	return &Classifier{
		set:      set,
		smallest: set.SmallestFirst(),
		keywords: keywords,
	}
}

// Classify returns the area name for a candidate, or "" when no rule
// matches. Rules that name an area absent from the configuration pass
// through, so the output is always "" or a configured name.
func (c *Classifier) Classify(cand Candidate) string {
	rawLower := strings.ToLower(strings.TrimSpace(cand.Address))
	normalized := utils.NormalizeAddress(cand.Address)
	parts := utils.ParseAddress(cand.Address)

	zip := cand.Zip
	if zip == "" {
		zip = parts.Zip
	}

	// 1. Authoritative street overrides.
	for _, o := range streetOverrides {
		if !containsPhrase(normalized, o.Needle) {
			continue
		}
		if len(o.Zips) > 0 && !zipIn(zip, o.Zips) {
			continue
		}
		if name, ok := c.configured(o.Area); ok {
			return name
		}
	}

	// 2. Numeric street-range rules. Skipped when no leading number parsed.
	if parts.Number > 0 {
		for _, r := range streetRanges {
			if !containsPhrase(parts.Street, r.Street) {
				continue
			}
			for _, split := range r.Splits {
				if parts.Number >= split.Low && parts.Number <= split.High {
					if name, ok := c.configured(split.Area); ok {
						return name
					}
					break
				}
			}
		}
	}

	// 3. Area keywords in the raw lowercased address, longest first.
	for _, kw := range c.keywords {
		if strings.Contains(rawLower, kw) {
			if name, ok := c.configured(areaKeywords[kw]); ok {
				return name
			}
		}
	}

	// 4. Provider sublocality.
	if cand.Sublocality != "" {
		if area, ok := sublocalityAreas[strings.ToLower(strings.TrimSpace(cand.Sublocality))]; ok {
			if name, ok := c.configured(area); ok {
				return name
			}
		}
	}

	// 5. Zip membership, smallest bounding box wins ties.
	if zip != "" {
		for _, a := range c.smallest {
			if a.HasZip(zip) {
				return a.Name
			}
		}
	}

	// 6. Bounding-box containment, smallest first so inner areas win.
	if cand.Lat != 0 || cand.Lng != 0 {
		for _, a := range c.smallest {
			if a.Bounds.Contains(cand.Lat, cand.Lng) {
				return a.Name
			}
		}
	}

	return ""
}

// configured resolves a table area name against the loaded set.
func (c *Classifier) configured(name string) (string, bool) {
	if a, ok := c.set.ByName(name); ok {
		return a.Name, true
	}
	return "", false
}

// containsPhrase reports whether phrase occurs in s on word boundaries, so
// "e bay st" does not match inside "mobile bay st".
func containsPhrase(s, phrase string) bool {
	if s == phrase {
		return true
	}
	if strings.HasPrefix(s, phrase+" ") || strings.HasSuffix(s, " "+phrase) {
		return true
	}
	return strings.Contains(s, " "+phrase+" ")
}

func zipIn(zip string, zips []string) bool {
	for _, z := range zips {
		if z == zip {
			return true
		}
	}
	return false
}

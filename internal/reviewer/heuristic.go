// Package reviewer scores extracted promotion entries and decides which ones
// reach the gold record. Confident entries pass straight through, hopeless
// ones are dropped, and the borderline band goes to the LLM for a second
// opinion that is persisted and never re-asked.
package reviewer

import (
	"strings"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/pkg/utils"
)

// negativePatterns are phrases that usually mean the extractor mistook
// ordinary website copy for a promotion. Matching is against the venue's
// whole source text, lowercased.
var negativePatterns = []string{
	"business hours",
	"hours of operation",
	"we are happy to serve",
	"happy to serve you",
	"happy to accommodate",
	"happy to help",
}

// Score computes the heuristic confidence for one entry. A fully fleshed-out
// entry lands at 0.90 before the negative-pattern penalty; the result is
// clamped to [0, 1].
func Score(e models.PromotionEntry, sourceText string) float64 {
	s := 0.0

	if strings.ContainsAny(e.Times, "0123456789") {
		s += constants.WeightTimes
	}
	if strings.TrimSpace(e.Days) != "" {
		s += constants.WeightDays
	}
	s += labelScore(e.Label)
	s += specialsScore(e.Specials)

	if containsNegativePattern(sourceText) {
		s -= constants.PenaltyNegative
	}

	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// labelScore rewards labels that read like a venue actually named the deal.
// "Happy Hour" or "Taco Tuesday" carry full weight; a bare abbreviation like
// "HH" is barely better than nothing.
func labelScore(label string) float64 {
	label = strings.TrimSpace(label)
	switch {
	case label == "":
		return 0
	case len(label) <= 3:
		return constants.WeightLabelMax * 0.25
	case strings.Contains(label, " "):
		return constants.WeightLabelMax
	default:
		return constants.WeightLabelMax * 0.5
	}
}

// specialsScore rewards concrete offers. Each plausible special counts; junk
// entries (too short to mean anything, or paragraph-length ramble) do not.
func specialsScore(specials []string) float64 {
	s := 0.0
	for _, sp := range specials {
		sp = strings.TrimSpace(sp)
		if len(sp) < 3 || len(sp) > 80 {
			continue
		}
		s += constants.WeightSpecialsMax / 4
		if s >= constants.WeightSpecialsMax {
			return constants.WeightSpecialsMax
		}
	}
	return s
}

func containsNegativePattern(sourceText string) bool {
	lower := strings.ToLower(sourceText)
	for _, p := range negativePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// periodKey normalizes an entry's schedule into the review-table key so the
// same offer maps to the same row across runs, regardless of whitespace or
// case drift in the extraction.
func periodKey(e models.PromotionEntry) string {
	key := utils.CollapseWhitespace(strings.ToLower(e.Days + " " + e.Times))
	if key == "" {
		return "any"
	}
	return key
}

package models

import "time"

// Extraction methods recorded on gold records.
const (
	ExtractionBulk        = "llm-bulk"
	ExtractionIncremental = "llm-incremental"
)

// HappyHour is the single-offer schema most venues produce.
type HappyHour struct {
	Found    bool     `json:"found"`
	Times    string   `json:"times,omitempty"`
	Days     string   `json:"days,omitempty"`
	Specials []string `json:"specials,omitempty"`
}

// PromotionEntry is one extracted offer. SourceText carries the snippet the
// model based the entry on, used by the confidence reviewer.
type PromotionEntry struct {
	Type       string   `json:"type"` // activity category, e.g. "Happy Hour"
	Label      string   `json:"label,omitempty"`
	Times      string   `json:"times,omitempty"`
	Days       string   `json:"days,omitempty"`
	Specials   []string `json:"specials,omitempty"`
	SourceText string   `json:"sourceText,omitempty"`
}

// Promotions is the multi-offer schema for venues with several programs.
type Promotions struct {
	Found   bool             `json:"found"`
	Entries []PromotionEntry `json:"entries"`
}

// GoldRecord is the LLM extraction output for one venue, written to
// gold/<venueId>.json and mirrored in the store. SourceHash identifies the
// exact trimmed content the extraction saw.
type GoldRecord struct {
	VenueID          string      `json:"venueId"`
	VenueName        string      `json:"venueName"`
	ExtractedAt      time.Time   `json:"extractedAt"`
	ExtractionMethod string      `json:"extractionMethod"` // "llm-bulk", "llm-incremental"
	SourceHash       string      `json:"sourceHash"`       // 16 hex chars
	SourceModifiedAt time.Time   `json:"sourceModifiedAt"`
	NeedsLLM         bool        `json:"needsLLM"`
	Confidence       float64     `json:"confidence"`
	HappyHour        *HappyHour  `json:"happyHour,omitempty"`
	Promotions       *Promotions `json:"promotions,omitempty"`
}

// Found reports whether the record carries at least one extracted offer.
func (g *GoldRecord) Found() bool {
	if g.HappyHour != nil && g.HappyHour.Found {
		return true
	}
	return g.Promotions != nil && g.Promotions.Found && len(g.Promotions.Entries) > 0
}

// Entries flattens the record into promotion entries regardless of which
// schema the extractor used. A happy-hour-only record yields one entry of
// type "Happy Hour".
func (g *GoldRecord) Entries() []PromotionEntry {
	var out []PromotionEntry
	if g.Promotions != nil && g.Promotions.Found {
		out = append(out, g.Promotions.Entries...)
	}
	if g.HappyHour != nil && g.HappyHour.Found {
		out = append(out, PromotionEntry{
			Type:     "Happy Hour",
			Times:    g.HappyHour.Times,
			Days:     g.HappyHour.Days,
			Specials: g.HappyHour.Specials,
		})
	}
	return out
}

// LLM review decisions.
const (
	ReviewAccept = "accept"
	ReviewReject = "reject"
	ReviewUnsure = "unsure"
)

// ConfidenceReview persists one borderline-entry decision. The key
// (venue_id, type, period) survives across runs so a decision is never
// re-asked for the same offer.
type ConfidenceReview struct {
	VenueID        string     `json:"venue_id" db:"venue_id"`
	Type           string     `json:"type" db:"type"`
	Period         string     `json:"period" db:"period"` // normalized days+times key
	HeuristicScore float64    `json:"heuristic_score" db:"heuristic_score"`
	LLMDecision    *string    `json:"llm_decision" db:"llm_decision"` // "accept", "reject", "unsure", null
	LLMReasoning   *string    `json:"llm_reasoning" db:"llm_reasoning"`
	AppliedAt      *time.Time `json:"applied_at" db:"applied_at"`
}

// Decision returns the persisted LLM decision or "" when none was recorded.
func (r *ConfidenceReview) Decision() string {
	if r.LLMDecision == nil {
		return ""
	}
	return *r.LLMDecision
}

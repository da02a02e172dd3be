package extractor

import (
	"encoding/json"
	"strings"

	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// extractionResponse is the strict shape the model must return. found=false
// with empty entries is a legitimate answer, not an error.
type extractionResponse struct {
	Found     bool                    `json:"found"`
	Entries   []models.PromotionEntry `json:"entries"`
	Reasoning string                  `json:"reasoning"`
}

// parseExtraction decodes the model output. Entries without a type are
// dropped: nothing downstream can key a spot on them.
func parseExtraction(raw string) (*extractionResponse, error) {
	cleaned := stripFences(raw)

	var resp extractionResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, errs.NewSchema("extractor.parseExtraction", "response is not the expected JSON shape", err)
	}

	kept := make([]models.PromotionEntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		e.Type = strings.TrimSpace(e.Type)
		if e.Type == "" {
			continue
		}
		e.Label = strings.TrimSpace(e.Label)
		e.Days = strings.TrimSpace(e.Days)
		e.Times = strings.TrimSpace(e.Times)
		kept = append(kept, e)
	}
	resp.Entries = kept

	if resp.Found && len(resp.Entries) == 0 {
		return nil, errs.NewSchema("extractor.parseExtraction", "found=true with no usable entries", nil)
	}
	return &resp, nil
}

// stripFences removes markdown code blocks some models wrap JSON in even when
// told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

const repairSuffix = "\n\nYour previous reply was not valid JSON for the required schema. " +
	"Reply again with ONLY the JSON object, no prose, no code fences."

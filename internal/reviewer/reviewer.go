package reviewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/internal/prompts"
	"venue-intel-pipeline/pkg/config"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/logging"
	"venue-intel-pipeline/pkg/utils"
)

// reviewExcerptCap bounds the source text sent with a review prompt. Reviews
// are about one entry, not the whole site; a couple of KB of context is
// plenty and keeps the second-opinion calls cheap.
const reviewExcerptCap = 2048

// ReviewStore persists borderline decisions keyed by (venue, type, period).
type ReviewStore interface {
	GetReview(ctx context.Context, venueID, typ, period string) (*models.ConfidenceReview, error)
	SaveReview(ctx context.Context, r *models.ConfidenceReview) error
}

// completer is the LLM surface the reviewer needs; the extractor's shared
// client satisfies it.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Reviewer struct {
	store ReviewStore
	llm   completer
	pm    *prompts.Manager
	high  float64
	low   float64
	log   *logging.ComponentLogger
}

// New builds the reviewer with the configured confidence tiers. store may be
// nil (decisions are then not persisted and unsure entries simply drop); llm
// may be nil, in which case the whole borderline band is treated as unsure.
func New(pcfg config.Pipeline, store ReviewStore, pm *prompts.Manager, llm completer, log *logging.Logger) *Reviewer {
	high := pcfg.Heuristic.THigh
	low := pcfg.Heuristic.TLow
	if high <= 0 {
		high = constants.ReviewHighConfidenceDefault
	}
	if low <= 0 {
		low = constants.ReviewLowConfidenceDefault
	}
	return &Reviewer{
		store: store,
		llm:   llm,
		pm:    pm,
		high:  high,
		low:   low,
		log:   log.WithComponent("reviewer"),
	}
}

// ReviewEntries filters one venue's extracted entries. Returns the promoted
// entries and the mean heuristic score of what survived. Provider-limit
// failures propagate so the caller can stop the run; anything else degrades
// to "unsure" for the affected entry.
func (r *Reviewer) ReviewEntries(ctx context.Context, doc *models.TrimmedDocument, entries []models.PromotionEntry) ([]models.PromotionEntry, float64, error) {
	texts := make([]string, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	sourceText := strings.Join(texts, "\n\n")

	kept := make([]models.PromotionEntry, 0, len(entries))
	sum := 0.0
	for _, e := range entries {
		s := Score(e, sourceText)
		switch {
		case s >= r.high:
			kept = append(kept, e)
			sum += s
		case s < r.low:
			r.log.Debug("entry rejected by heuristic",
				logging.String("venue_id", doc.VenueID),
				logging.String("type", e.Type),
				logging.Float64("score", s))
		default:
			decision, err := r.decide(ctx, doc, e, s, sourceText)
			if err != nil {
				return kept, mean(sum, len(kept)), err
			}
			if decision == models.ReviewAccept {
				kept = append(kept, e)
				sum += s
			} else {
				r.log.Debug("borderline entry not promoted",
					logging.String("venue_id", doc.VenueID),
					logging.String("type", e.Type),
					logging.String("decision", decision))
			}
		}
	}
	return kept, mean(sum, len(kept)), nil
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// decide resolves one borderline entry: persisted decision first, then one
// LLM call. Only provider-limit errors come back as errors; everything else
// resolves to an unsure (or cached) decision.
func (r *Reviewer) decide(ctx context.Context, doc *models.TrimmedDocument, e models.PromotionEntry, score float64, sourceText string) (string, error) {
	period := periodKey(e)

	if r.store != nil {
		existing, err := r.store.GetReview(ctx, doc.VenueID, e.Type, period)
		if err != nil {
			r.log.Warn("review lookup failed",
				logging.String("venue_id", doc.VenueID),
				logging.String("cause", err.Error()))
		} else if existing != nil && existing.Decision() != "" {
			return existing.Decision(), nil
		}
	}

	decision, reasoning, err := r.askLLM(ctx, doc, e, score, sourceText)
	if err != nil {
		var pl *errs.ProviderLimitError
		if errors.As(err, &pl) {
			return "", err
		}
		r.log.Warn("review call failed; treating entry as unsure",
			logging.String("venue_id", doc.VenueID),
			logging.String("type", e.Type),
			logging.String("cause", err.Error()))
		decision, reasoning = "", "review call failed"
	}

	r.persist(ctx, doc.VenueID, e.Type, period, score, decision, reasoning)
	if decision == "" {
		return models.ReviewUnsure, nil
	}
	return decision, nil
}

func (r *Reviewer) askLLM(ctx context.Context, doc *models.TrimmedDocument, e models.PromotionEntry, score float64, sourceText string) (decision, reasoning string, err error) {
	if r.llm == nil {
		return "", "no review provider configured", nil
	}

	excerpt := e.SourceText
	if excerpt == "" {
		excerpt = sourceText
	}
	excerpt = utils.TruncateWithMarker(excerpt, reviewExcerptCap, constants.TruncationMarker)

	raw, err := r.llm.Complete(ctx, r.systemPrompt(), r.userPrompt(doc, e, score, excerpt))
	if err != nil {
		return "", "", err
	}
	return parseReviewDecision(raw)
}

// persist writes the decision row. An empty decision is stored as NULL so the
// daily report can surface it as an action item and a later run re-asks.
func (r *Reviewer) persist(ctx context.Context, venueID, typ, period string, score float64, decision, reasoning string) {
	if r.store == nil {
		return
	}
	rec := &models.ConfidenceReview{
		VenueID:        venueID,
		Type:           typ,
		Period:         period,
		HeuristicScore: score,
	}
	if decision != "" {
		rec.LLMDecision = &decision
		now := time.Now()
		rec.AppliedAt = &now
	}
	if reasoning != "" {
		rec.LLMReasoning = &reasoning
	}
	if err := r.store.SaveReview(ctx, rec); err != nil {
		r.log.Warn("review persist failed",
			logging.String("venue_id", venueID),
			logging.String("cause", err.Error()))
	}
}

func (r *Reviewer) systemPrompt() string {
	if r.pm != nil {
		if out, err := r.pm.Render("review_system", nil); err == nil {
			return out
		}
	}
	return fallbackReviewSystem
}

func (r *Reviewer) userPrompt(doc *models.TrimmedDocument, e models.PromotionEntry, score float64, excerpt string) string {
	if r.pm != nil {
		data := map[string]any{
			"VenueName": doc.VenueName,
			"Type":      e.Type,
			"Label":     e.Label,
			"Days":      e.Days,
			"Times":     e.Times,
			"Specials":  strings.Join(e.Specials, "; "),
			"Score":     score,
			"Excerpt":   excerpt,
		}
		if out, err := r.pm.Render("review_user", data); err == nil {
			return out
		}
	}
	return fmt.Sprintf("Venue: %s\nEntry: type=%s label=%s days=%s times=%s specials=%s\nHeuristic score: %.2f\n\nSource text excerpt:\n---\n%s\n---\n\nIs this a real promotion? JSON only.",
		doc.VenueName, e.Type, e.Label, e.Days, e.Times, strings.Join(e.Specials, "; "), score, excerpt)
}

type reviewResponse struct {
	Decision  string `json:"decision"`
	Reasoning string `json:"reasoning"`
}

func parseReviewDecision(raw string) (decision, reasoning string, err error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var resp reviewResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return "", "", errs.NewSchema("reviewer.parseReviewDecision", "review response is not the expected JSON shape", err)
	}
	switch resp.Decision {
	case models.ReviewAccept, models.ReviewReject, models.ReviewUnsure:
		return resp.Decision, resp.Reasoning, nil
	default:
		return "", "", errs.NewSchema("reviewer.parseReviewDecision", "unknown review decision: "+resp.Decision, nil)
	}
}

const fallbackReviewSystem = `You review one promotion entry extracted from a venue website and decide if it is a real promotion or a false positive.
Respond with JSON only, exactly: {"decision": "accept" | "reject" | "unsure", "reasoning": "..."}`

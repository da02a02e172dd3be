// Package extractor is the LLM stage of the pipeline: one chat completion per
// work-set venue, a strict JSON answer, and a gold record per venue. The very
// first run processes the whole catalog in bulk; after the .bulk-complete
// sentinel exists, only the delta work-set is sent to the provider.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/internal/prompts"
	"venue-intel-pipeline/pkg/config"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/logging"
	"venue-intel-pipeline/pkg/utils"
)

// GoldStore is the slice of the relational store the extractor mirrors gold
// records into. Disk stays the source of truth; the mirror feeds reporting.
type GoldStore interface {
	UpsertGoldRecord(ctx context.Context, rec *models.GoldRecord) error
	SetKV(ctx context.Context, name, value string) error
}

// Reviewer filters extracted entries before they are promoted into the gold
// record, returning the entries to keep and their mean confidence score.
type Reviewer interface {
	ReviewEntries(ctx context.Context, doc *models.TrimmedDocument, entries []models.PromotionEntry) ([]models.PromotionEntry, float64, error)
}

// completer is what the extractor needs from the LLM client.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	CostStats() (totalTokens, totalRequests int, estimatedCostUSD float64, duration time.Duration)
}

// bulkCompleteKey mirrors the disk sentinel into the config table so the
// bulk date is queryable without filesystem access.
const bulkCompleteKey = "bulk_complete"

// BudgetError signals that the incremental work-set exceeds the per-run cap.
// The orchestrator records it as a step skip, not a failure.
type BudgetError struct {
	Size  int
	Limit int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("LLM limit hit: %d > %d", e.Size, e.Limit)
}

// Stats summarizes one extraction run for the manifest.
type Stats struct {
	Mode             string  `json:"mode"`
	WorkSet          int64   `json:"workSet"`
	Extracted        int64   `json:"extracted"`
	Found            int64   `json:"found"`
	SkippedUnchanged int64   `json:"skippedUnchanged"`
	Requeued         int64   `json:"requeued"`
	Failed           int64   `json:"failed"`
	StoreErrors      int64   `json:"storeErrors"`
	TotalTokens      int64   `json:"totalTokens"`
	EstimatedCostUSD float64 `json:"estimatedCostUSD"`
}

var defaultActivityTypes = []string{
	"Happy Hour", "Brunch", "Trivia", "Live Music", "Karaoke", "Bingo", "Open Mic",
}

type workItem struct {
	venueID  string
	path     string
	requeued bool
}

type Extractor struct {
	layout        datadir.Layout
	store         GoldStore
	reviewer      Reviewer
	pm            *prompts.Manager
	llm           completer
	pcfg          config.Pipeline
	activityTypes []string
	log           *logging.ComponentLogger
}

// New wires the extraction stage. store and reviewer may be nil (tests, or a
// pipeline run without a database); activityTypes nil falls back to the
// built-in category list.
func New(layout datadir.Layout, store GoldStore, reviewer Reviewer, pm *prompts.Manager, llm completer, pcfg config.Pipeline, activityTypes []string, log *logging.Logger) *Extractor {
	if len(activityTypes) == 0 {
		activityTypes = defaultActivityTypes
	}
	return &Extractor{
		layout:        layout,
		store:         store,
		reviewer:      reviewer,
		pm:            pm,
		llm:           llm,
		pcfg:          pcfg,
		activityTypes: activityTypes,
		log:           log.WithComponent("extractor"),
	}
}

// Run executes the extraction stage. In bulk mode (no sentinel yet) every
// trimmed document is in scope and the budget cap does not apply; in
// incremental mode the work-set is whatever the delta stage staged, plus any
// venue whose last extraction was flagged needsLLM.
func (e *Extractor) Run(ctx context.Context, now time.Time) (*Stats, error) {
	stats := &Stats{}
	bulk := !e.layout.BulkComplete()

	var items []workItem
	var err error
	if bulk {
		stats.Mode = models.ExtractionBulk
		items, err = e.listWorkSet(e.layout.TrimmedAllDir(), e.layout.TrimmedAllPath)
		if err != nil {
			return stats, err
		}
	} else {
		stats.Mode = models.ExtractionIncremental
		items, err = e.listWorkSet(e.layout.TrimmedIncrementalDir(), e.layout.TrimmedIncrementalPath)
		if err != nil {
			return stats, err
		}
		limit := e.pcfg.MaxIncrementalFiles
		if limit <= 0 {
			limit = constants.MaxIncrementalFilesDefault
		}
		if len(items) > limit {
			stats.WorkSet = int64(len(items))
			return stats, &BudgetError{Size: len(items), Limit: limit}
		}
		requeued := e.requeueFlagged(items)
		stats.Requeued = int64(len(requeued))
		items = append(items, requeued...)
	}

	stats.WorkSet = int64(len(items))
	if len(items) == 0 {
		e.log.Info("nothing to extract", logging.String("mode", stats.Mode))
		return stats, nil
	}
	sort.Slice(items, func(i, j int) bool { return items[i].venueID < items[j].venueID })

	workers := e.pcfg.ExtractorConcurrency
	if workers <= 0 {
		workers = constants.ExtractorConcurrencyDefault
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var provMu sync.Mutex
	var provErr error

	for _, it := range items {
		if runCtx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(it workItem) {
			defer wg.Done()
			defer func() { <-sem }()
			if runCtx.Err() != nil {
				return
			}
			if err := e.extractVenue(runCtx, it, bulk, stats); err != nil {
				// Quota gone or circuit open: stop feeding the provider.
				provMu.Lock()
				if provErr == nil {
					provErr = err
				}
				provMu.Unlock()
				cancel()
			}
		}(it)
	}
	wg.Wait()

	tokens, _, cost, _ := e.llm.CostStats()
	stats.TotalTokens = int64(tokens)
	stats.EstimatedCostUSD = cost

	if provErr != nil {
		return stats, provErr
	}
	if err := ctx.Err(); err != nil {
		return stats, errs.NewTransient("extractor.Run", "extraction cancelled", err)
	}

	if bulk && atomic.LoadInt64(&stats.Extracted) > 0 {
		if err := e.layout.MarkBulkComplete(now); err != nil {
			return stats, err
		}
		if e.store != nil {
			if err := e.store.SetKV(ctx, bulkCompleteKey, now.Format("20060102")); err != nil {
				atomic.AddInt64(&stats.StoreErrors, 1)
				e.log.Warn("bulk-complete store mirror failed", logging.String("cause", err.Error()))
			}
		}
	}

	e.log.Info("extraction complete",
		logging.String("mode", stats.Mode),
		logging.Int64("extracted", atomic.LoadInt64(&stats.Extracted)),
		logging.Int64("found", atomic.LoadInt64(&stats.Found)),
		logging.Int64("skipped_unchanged", atomic.LoadInt64(&stats.SkippedUnchanged)),
		logging.Int64("failed", atomic.LoadInt64(&stats.Failed)),
		logging.Float64("estimated_cost_usd", cost))
	return stats, nil
}

func (e *Extractor) listWorkSet(dir string, pathFor func(string) string) ([]workItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.NewTransient("extractor.listWorkSet", "cannot list work-set", err)
	}
	var items []workItem
	for _, en := range entries {
		if en.IsDir() || !strings.HasSuffix(en.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(en.Name(), ".json")
		items = append(items, workItem{venueID: id, path: pathFor(id)})
	}
	return items, nil
}

// requeueFlagged picks up venues whose last extraction ended needsLLM=true.
// Their content may not have changed since, so the delta stage will never
// stage them again; without this they would stay broken forever.
func (e *Extractor) requeueFlagged(staged []workItem) []workItem {
	have := make(map[string]bool, len(staged))
	for _, it := range staged {
		have[it.venueID] = true
	}

	entries, err := os.ReadDir(e.layout.GoldDir())
	if err != nil {
		return nil
	}
	var out []workItem
	for _, en := range entries {
		if en.IsDir() || !strings.HasSuffix(en.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(en.Name(), ".json")
		if have[id] {
			continue
		}
		var rec models.GoldRecord
		if err := datadir.ReadJSON(e.layout.GoldPath(id), &rec); err != nil || !rec.NeedsLLM {
			continue
		}
		src := e.layout.TrimmedAllPath(id)
		if !datadir.Exists(src) {
			continue
		}
		out = append(out, workItem{venueID: id, path: src, requeued: true})
	}
	return out
}

// extractVenue runs the full per-venue path: hash gate, LLM call with one
// repair pass, review filter, gold write. Only provider-limit conditions
// propagate as errors; everything else is absorbed into stats so one venue
// cannot take down the run.
func (e *Extractor) extractVenue(ctx context.Context, it workItem, bulk bool, stats *Stats) error {
	var doc models.TrimmedDocument
	if err := datadir.ReadJSON(it.path, &doc); err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		e.log.Warn("unreadable trimmed document skipped", logging.String("venue_id", it.venueID))
		return nil
	}

	texts := make([]string, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	joined := strings.Join(texts, "\n\n")
	sourceHash := utils.MD5Hex(joined, constants.SourceHashHexLen)

	var existing models.GoldRecord
	if err := datadir.ReadJSON(e.layout.GoldPath(it.venueID), &existing); err == nil {
		if !existing.NeedsLLM && existing.SourceHash == sourceHash {
			atomic.AddInt64(&stats.SkippedUnchanged, 1)
			return nil
		}
	}

	method := models.ExtractionIncremental
	if bulk {
		method = models.ExtractionBulk
	}

	capped := utils.TruncateWithMarker(joined, constants.VenueTextCapBytes, constants.TruncationMarker)
	resp, err := e.callWithRepair(ctx, &doc, capped, len(texts))
	if err != nil {
		var pl *errs.ProviderLimitError
		if errors.As(err, &pl) {
			return err
		}
		atomic.AddInt64(&stats.Failed, 1)
		e.log.Warn("extraction failed; venue flagged for another pass",
			logging.String("venue_id", it.venueID),
			logging.String("cause", err.Error()))
		e.writeGold(ctx, &models.GoldRecord{
			VenueID:          it.venueID,
			VenueName:        doc.VenueName,
			ExtractedAt:      time.Now(),
			ExtractionMethod: method,
			SourceHash:       sourceHash,
			SourceModifiedAt: doc.ScrapedAt,
			NeedsLLM:         true,
		}, stats)
		return nil
	}

	entries := resp.Entries
	confidence := 0.0
	if resp.Found && e.reviewer != nil {
		kept, mean, rerr := e.reviewer.ReviewEntries(ctx, &doc, entries)
		if rerr != nil {
			var pl *errs.ProviderLimitError
			if errors.As(rerr, &pl) {
				return rerr
			}
			e.log.Warn("entry review failed; keeping best-effort result",
				logging.String("venue_id", it.venueID),
				logging.String("cause", rerr.Error()))
		}
		entries = kept
		confidence = mean
	}

	rec := &models.GoldRecord{
		VenueID:          it.venueID,
		VenueName:        doc.VenueName,
		ExtractedAt:      time.Now(),
		ExtractionMethod: method,
		SourceHash:       sourceHash,
		SourceModifiedAt: doc.ScrapedAt,
		Confidence:       confidence,
		Promotions:       &models.Promotions{Found: resp.Found, Entries: entries},
	}
	atomic.AddInt64(&stats.Extracted, 1)
	if rec.Found() {
		atomic.AddInt64(&stats.Found, 1)
	}
	e.writeGold(ctx, rec, stats)
	return nil
}

func (e *Extractor) callWithRepair(ctx context.Context, doc *models.TrimmedDocument, text string, pages int) (*extractionResponse, error) {
	system := e.systemPrompt()
	user := e.userPrompt(doc, text, pages)

	raw, err := e.llm.Complete(ctx, system, user)
	if err != nil {
		return nil, err
	}
	resp, perr := parseExtraction(raw)
	if perr == nil {
		return resp, nil
	}

	for i := 0; i < constants.LLMRepairAttempts; i++ {
		raw, err = e.llm.Complete(ctx, system, user+repairSuffix)
		if err != nil {
			return nil, err
		}
		if resp, perr = parseExtraction(raw); perr == nil {
			return resp, nil
		}
	}
	return nil, perr
}

func (e *Extractor) systemPrompt() string {
	if e.pm != nil {
		data := map[string]any{"ActivityTypes": strings.Join(e.activityTypes, ", ")}
		if out, err := e.pm.Render("extraction_system", data); err == nil {
			return out
		}
	}
	return fallbackExtractionSystem
}

func (e *Extractor) userPrompt(doc *models.TrimmedDocument, text string, pages int) string {
	if e.pm != nil {
		data := map[string]any{
			"VenueName": doc.VenueName,
			"Area":      doc.VenueArea,
			"Website":   doc.Website,
			"PageCount": pages,
			"Text":      text,
		}
		if out, err := e.pm.Render("extraction_user", data); err == nil {
			return out
		}
	}
	return fmt.Sprintf("Venue: %s\nArea: %s\nWebsite: %s\n\nWebsite text (%d pages, trimmed):\n---\n%s\n---\n\nExtract all recurring promotions from the text above. JSON only.",
		doc.VenueName, doc.VenueArea, doc.Website, pages, text)
}

func (e *Extractor) writeGold(ctx context.Context, rec *models.GoldRecord, stats *Stats) {
	if err := datadir.WriteJSONAtomic(e.layout.GoldPath(rec.VenueID), rec); err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		e.log.Error("gold write failed", err, logging.String("venue_id", rec.VenueID))
		return
	}
	if e.store != nil {
		if err := e.store.UpsertGoldRecord(ctx, rec); err != nil {
			atomic.AddInt64(&stats.StoreErrors, 1)
			e.log.Warn("gold store mirror failed",
				logging.String("venue_id", rec.VenueID),
				logging.String("cause", err.Error()))
		}
	}
}

const fallbackExtractionSystem = `You are a venue promotions analyst. Extract recurring promotions from venue website text.
Only report promotions explicitly stated in the text. Regular business hours are NOT a promotion.
found=false with empty entries is a valid answer.
Respond with JSON only, exactly: {"found": bool, "entries": [{"type": "...", "days": "...", "times": "...", "label": "...", "specials": ["..."]}], "reasoning": "..."}`

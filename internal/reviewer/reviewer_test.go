package reviewer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/pkg/config"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.NewLogger(logging.LogConfig{Level: logging.LevelError, Format: "text", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

type fakeReviewStore struct {
	rows  map[string]*models.ConfidenceReview
	saved []*models.ConfidenceReview
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{rows: make(map[string]*models.ConfidenceReview)}
}

func reviewKey(venueID, typ, period string) string {
	return venueID + "|" + typ + "|" + period
}

func (f *fakeReviewStore) GetReview(_ context.Context, venueID, typ, period string) (*models.ConfidenceReview, error) {
	return f.rows[reviewKey(venueID, typ, period)], nil
}

func (f *fakeReviewStore) SaveReview(_ context.Context, r *models.ConfidenceReview) error {
	f.rows[reviewKey(r.VenueID, r.Type, r.Period)] = r
	f.saved = append(f.saved, r)
	return nil
}

type fakeCompleter struct {
	users []string
	reply func(call int, system, user string) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	call := len(f.users)
	f.users = append(f.users, user)
	return f.reply(call, system, user)
}

func testDoc(pageText string) *models.TrimmedDocument {
	return &models.TrimmedDocument{
		VenueID:   "v-1",
		VenueName: "The Griffon",
		Pages:     []models.MergedPage{{URL: "https://griffon.example/", Text: pageText}},
	}
}

// Fixture entries pinned to known heuristic scores: strongEntry 0.90,
// borderlineEntry 0.55, weakEntry 0.10 against neutral source text.
func strongEntry() models.PromotionEntry {
	return models.PromotionEntry{
		Type:     "Happy Hour",
		Label:    "Happy Hour",
		Days:     "Monday-Friday",
		Times:    "4pm-7pm",
		Specials: []string{"$5 drafts", "$6 house wine", "$7 well drinks", "half-price oysters"},
	}
}

func borderlineEntry() models.PromotionEntry {
	return models.PromotionEntry{Type: "Happy Hour", Label: "HH", Days: "Mon-Fri", Times: "4-7"}
}

func weakEntry() models.PromotionEntry {
	return models.PromotionEntry{Type: "Trivia", Label: "Trivia"}
}

func newReviewer(store ReviewStore, llm completer, log *logging.Logger) *Reviewer {
	return New(config.DefaultPipeline(), store, nil, llm, log)
}

func TestReviewEntriesTierRouting(t *testing.T) {
	store := newFakeReviewStore()
	llm := &fakeCompleter{reply: func(int, string, string) (string, error) {
		return `{"decision": "accept", "reasoning": "reads like a real happy hour"}`, nil
	}}
	r := newReviewer(store, llm, testLogger(t))

	doc := testDoc("Happy hour 4-7 weekdays. $5 drafts.")
	kept, meanScore, err := r.ReviewEntries(context.Background(), doc, []models.PromotionEntry{
		strongEntry(), weakEntry(), borderlineEntry(),
	})
	if err != nil {
		t.Fatalf("ReviewEntries: %v", err)
	}

	if len(kept) != 2 {
		t.Fatalf("kept %d entries, want 2: %+v", len(kept), kept)
	}
	if kept[0].Label != "Happy Hour" || kept[1].Label != "HH" {
		t.Fatalf("kept wrong entries: %+v", kept)
	}
	if len(llm.users) != 1 {
		t.Fatalf("llm called %d times, want 1 (borderline only)", len(llm.users))
	}
	approx(t, meanScore, (0.90+0.55)/2)

	if len(store.saved) != 1 {
		t.Fatalf("saved %d reviews, want 1", len(store.saved))
	}
	rec := store.saved[0]
	if rec.VenueID != "v-1" || rec.Type != "Happy Hour" || rec.Period != "mon-fri 4-7" {
		t.Fatalf("review keyed wrong: %+v", rec)
	}
	if rec.Decision() != models.ReviewAccept || rec.AppliedAt == nil {
		t.Fatalf("decision not applied: %+v", rec)
	}
	approx(t, rec.HeuristicScore, 0.55)
}

func TestReviewEntriesCachedDecisionSkipsLLM(t *testing.T) {
	accept := models.ReviewAccept
	reject := models.ReviewReject

	store := newFakeReviewStore()
	store.rows[reviewKey("v-1", "Happy Hour", "mon-fri 4-7")] = &models.ConfidenceReview{
		VenueID: "v-1", Type: "Happy Hour", Period: "mon-fri 4-7", LLMDecision: &accept,
	}
	store.rows[reviewKey("v-1", "Trivia", "wednesday 7")] = &models.ConfidenceReview{
		VenueID: "v-1", Type: "Trivia", Period: "wednesday 7", LLMDecision: &reject,
	}

	llm := &fakeCompleter{reply: func(int, string, string) (string, error) {
		t.Fatal("cached decision must not reach the LLM")
		return "", nil
	}}
	r := newReviewer(store, llm, testLogger(t))

	// Both land in the borderline band; the cached rows decide them.
	borderlineTrivia := models.PromotionEntry{Type: "Trivia", Label: "TN", Days: "Wednesday", Times: "7"}
	kept, _, err := r.ReviewEntries(context.Background(), testDoc("weekly specials"), []models.PromotionEntry{
		borderlineEntry(), borderlineTrivia,
	})
	if err != nil {
		t.Fatalf("ReviewEntries: %v", err)
	}

	if len(kept) != 1 || kept[0].Type != "Happy Hour" {
		t.Fatalf("cached decisions misapplied, kept: %+v", kept)
	}
	if len(store.saved) != 0 {
		t.Fatalf("cached decisions should not be re-saved, saved %d", len(store.saved))
	}
}

func TestReviewEntriesUnsureDropsAndPersists(t *testing.T) {
	store := newFakeReviewStore()
	llm := &fakeCompleter{reply: func(int, string, string) (string, error) {
		return `{"decision": "unsure", "reasoning": "could be outdated copy"}`, nil
	}}
	r := newReviewer(store, llm, testLogger(t))

	kept, meanScore, err := r.ReviewEntries(context.Background(), testDoc("happy hour maybe"), []models.PromotionEntry{borderlineEntry()})
	if err != nil {
		t.Fatalf("ReviewEntries: %v", err)
	}
	if len(kept) != 0 {
		t.Fatalf("unsure entry must not be promoted, kept: %+v", kept)
	}
	approx(t, meanScore, 0)

	if len(store.saved) != 1 {
		t.Fatalf("saved %d reviews, want 1", len(store.saved))
	}
	rec := store.saved[0]
	if rec.Decision() != models.ReviewUnsure || rec.AppliedAt == nil {
		t.Fatalf("unsure decision not recorded: %+v", rec)
	}
	if rec.LLMReasoning == nil || *rec.LLMReasoning != "could be outdated copy" {
		t.Fatalf("reasoning not recorded: %+v", rec)
	}

	// The recorded answer is reused on the next run.
	llm2 := &fakeCompleter{reply: func(int, string, string) (string, error) {
		t.Fatal("recorded unsure decision must not be re-asked")
		return "", nil
	}}
	r2 := newReviewer(store, llm2, testLogger(t))
	kept, _, err = r2.ReviewEntries(context.Background(), testDoc("happy hour maybe"), []models.PromotionEntry{borderlineEntry()})
	if err != nil || len(kept) != 0 {
		t.Fatalf("second run: kept=%v err=%v", kept, err)
	}
}

func TestReviewEntriesFailedCallIsReaskedNextRun(t *testing.T) {
	store := newFakeReviewStore()
	llm := &fakeCompleter{reply: func(int, string, string) (string, error) {
		return "", errs.NewTransient("llm.Complete", "provider busy", nil)
	}}
	r := newReviewer(store, llm, testLogger(t))

	kept, _, err := r.ReviewEntries(context.Background(), testDoc("happy hour"), []models.PromotionEntry{borderlineEntry()})
	if err != nil {
		t.Fatalf("ReviewEntries: %v", err)
	}
	if len(kept) != 0 {
		t.Fatalf("failed review must drop the entry, kept: %+v", kept)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved %d reviews, want 1", len(store.saved))
	}
	rec := store.saved[0]
	if rec.LLMDecision != nil || rec.AppliedAt != nil {
		t.Fatalf("failed call must persist without a decision: %+v", rec)
	}

	// No decision on record, so the next run asks again.
	llm2 := &fakeCompleter{reply: func(int, string, string) (string, error) {
		return `{"decision": "accept", "reasoning": "confirmed"}`, nil
	}}
	r2 := newReviewer(store, llm2, testLogger(t))
	kept, _, err = r2.ReviewEntries(context.Background(), testDoc("happy hour"), []models.PromotionEntry{borderlineEntry()})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(kept) != 1 {
		t.Fatalf("second run should promote after accept, kept: %+v", kept)
	}
	if len(llm2.users) != 1 {
		t.Fatalf("second run should re-ask once, asked %d times", len(llm2.users))
	}
}

func TestReviewEntriesGarbageReplyIsUnsure(t *testing.T) {
	store := newFakeReviewStore()
	llm := &fakeCompleter{reply: func(int, string, string) (string, error) {
		return "I think this one is probably fine.", nil
	}}
	r := newReviewer(store, llm, testLogger(t))

	kept, _, err := r.ReviewEntries(context.Background(), testDoc("happy hour"), []models.PromotionEntry{borderlineEntry()})
	if err != nil {
		t.Fatalf("ReviewEntries: %v", err)
	}
	if len(kept) != 0 {
		t.Fatalf("unparseable review must drop the entry, kept: %+v", kept)
	}
	if len(store.saved) != 1 || store.saved[0].LLMDecision != nil {
		t.Fatalf("garbage reply must persist as undecided: %+v", store.saved)
	}
}

func TestReviewEntriesProviderLimitPropagates(t *testing.T) {
	store := newFakeReviewStore()
	llm := &fakeCompleter{reply: func(int, string, string) (string, error) {
		return "", errs.NewProviderLimit("llm.completeOnce", "openai", "quota exhausted", nil)
	}}
	r := newReviewer(store, llm, testLogger(t))

	kept, meanScore, err := r.ReviewEntries(context.Background(), testDoc("happy hour"), []models.PromotionEntry{
		strongEntry(), borderlineEntry(),
	})
	var pl *errs.ProviderLimitError
	if !errors.As(err, &pl) {
		t.Fatalf("want ProviderLimitError, got %v", err)
	}
	if len(kept) != 1 || kept[0].Label != "Happy Hour" {
		t.Fatalf("partial result should keep confident entries, kept: %+v", kept)
	}
	approx(t, meanScore, 0.90)
	if len(store.saved) != 0 {
		t.Fatalf("aborted review must not persist a decision, saved %d", len(store.saved))
	}
}

func TestReviewEntriesNilLLMTreatsBorderlineAsUnsure(t *testing.T) {
	store := newFakeReviewStore()
	r := newReviewer(store, nil, testLogger(t))

	kept, _, err := r.ReviewEntries(context.Background(), testDoc("happy hour"), []models.PromotionEntry{
		strongEntry(), borderlineEntry(),
	})
	if err != nil {
		t.Fatalf("ReviewEntries: %v", err)
	}
	if len(kept) != 1 || kept[0].Label != "Happy Hour" {
		t.Fatalf("without an LLM only confident entries pass, kept: %+v", kept)
	}
	if len(store.saved) != 1 || store.saved[0].LLMDecision != nil {
		t.Fatalf("borderline without LLM persists as undecided: %+v", store.saved)
	}
}

func TestReviewEntriesExcerptPrefersEntrySourceText(t *testing.T) {
	filler := strings.Repeat("menu filler ", 300)

	e := borderlineEntry()
	e.SourceText = "HH Mon-Fri 4-7, $1 off drafts"

	llm := &fakeCompleter{reply: func(int, string, string) (string, error) {
		return `{"decision": "accept", "reasoning": "ok"}`, nil
	}}
	r := newReviewer(newFakeReviewStore(), llm, testLogger(t))

	if _, _, err := r.ReviewEntries(context.Background(), testDoc(filler), []models.PromotionEntry{e}); err != nil {
		t.Fatalf("ReviewEntries: %v", err)
	}
	if len(llm.users) != 1 {
		t.Fatalf("llm called %d times, want 1", len(llm.users))
	}
	if !strings.Contains(llm.users[0], "HH Mon-Fri 4-7") {
		t.Fatalf("prompt should quote the entry's own source text:\n%s", llm.users[0])
	}
	if strings.Contains(llm.users[0], "menu filler") {
		t.Fatalf("prompt should not fall back to page text when the entry carries its own")
	}
}

func TestReviewEntriesExcerptIsCapped(t *testing.T) {
	long := strings.Repeat("a", reviewExcerptCap+500)

	llm := &fakeCompleter{reply: func(int, string, string) (string, error) {
		return `{"decision": "reject", "reasoning": "noise"}`, nil
	}}
	r := newReviewer(newFakeReviewStore(), llm, testLogger(t))

	if _, _, err := r.ReviewEntries(context.Background(), testDoc(long), []models.PromotionEntry{borderlineEntry()}); err != nil {
		t.Fatalf("ReviewEntries: %v", err)
	}
	if !strings.Contains(llm.users[0], "[TRUNCATED]") {
		t.Fatal("oversized excerpt should carry the truncation marker")
	}
}

func TestNewTierDefaults(t *testing.T) {
	r := New(config.Pipeline{}, nil, nil, nil, testLogger(t))
	approx(t, r.high, 0.75)
	approx(t, r.low, 0.40)

	r = New(config.Pipeline{Heuristic: config.Heuristic{THigh: 0.9, TLow: 0.2}}, nil, nil, nil, testLogger(t))
	approx(t, r.high, 0.9)
	approx(t, r.low, 0.2)
}

func TestParseReviewDecision(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decision string
		wantErr  bool
	}{
		{name: "plain accept", raw: `{"decision": "accept", "reasoning": "fine"}`, decision: "accept"},
		{name: "fenced reject", raw: "```json\n{\"decision\": \"reject\", \"reasoning\": \"boilerplate\"}\n```", decision: "reject"},
		{name: "unsure", raw: `{"decision": "unsure", "reasoning": "ambiguous"}`, decision: "unsure"},
		{name: "unknown word", raw: `{"decision": "maybe", "reasoning": ""}`, wantErr: true},
		{name: "prose", raw: "Looks good to me!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, _, err := parseReviewDecision(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got decision %q", decision)
				}
				var se *errs.SchemaError
				if !errors.As(err, &se) {
					t.Fatalf("want SchemaError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseReviewDecision: %v", err)
			}
			if decision != tt.decision {
				t.Fatalf("decision = %q, want %q", decision, tt.decision)
			}
		})
	}
}

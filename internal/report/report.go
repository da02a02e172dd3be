// Package report assembles the operator-facing daily report: the run pivot,
// the delta partition, attention buckets, streak leaders and the last day of
// curation decisions. Rendering is plain text; anything fancier belongs to
// the serving layer, not here.
package report

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/events"
	"venue-intel-pipeline/pkg/logging"
)

// Attention bucket severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// curationWindow is how far back the recent-curation section looks.
const curationWindow = 24 * time.Hour

// zeroPageListCap bounds the zero-page venue list; past this the count
// matters, not the names.
const zeroPageListCap = 10

// streakLeaderCount is how many streak rows the report shows.
const streakLeaderCount = 10

// runHistoryCount is how many store-side runs the history strip covers.
const runHistoryCount = 7

// Store is the slice of the relational store the report reads.
type Store interface {
	SpotCounts(ctx context.Context) (map[string]int, error)
	GoldStats(ctx context.Context) (total, found, needsLLM int, err error)
	ReviewStats(ctx context.Context) (map[string]int, error)
	TopStreaks(ctx context.Context, limit int) ([]models.Streak, error)
	ListWatchlist(ctx context.Context, status string) ([]models.WatchlistEntry, error)
	ListApprovedSpots(ctx context.Context) ([]models.Spot, error)
	ListRecentRuns(ctx context.Context, limit int) ([]models.PipelineRun, error)
	ListSpotsByStatus(ctx context.Context, status string) ([]models.Spot, error)
}

// Journal is the event store surface the report replays.
type Journal interface {
	ListSince(ctx context.Context, cutoff time.Time) ([]events.StoredEvent, error)
}

// StepStatus is one pivot row: a step and its outcome.
type StepStatus struct {
	Step     string `json:"step"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Items    int    `json:"items,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ActionItem is one attention bucket row.
type ActionItem struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// CurationAction is one replayed curation decision.
type CurationAction struct {
	At      time.Time `json:"at"`
	Type    string    `json:"type"`
	Subject string    `json:"subject"`
	Actor   string    `json:"actor,omitempty"`
}

// GoldSummary mirrors the store's gold tallies.
type GoldSummary struct {
	Total    int `json:"total"`
	Found    int `json:"found"`
	NeedsLLM int `json:"needsLlm"`
}

// RunSummary is one row of the run history strip.
type RunSummary struct {
	RunID    string `json:"runId"`
	Date     string `json:"date"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
}

// Report is one assembled daily report.
type Report struct {
	Date        string                `json:"date"`
	GeneratedAt time.Time             `json:"generatedAt"`
	Manifest    *models.Manifest      `json:"manifest,omitempty"`
	Steps       []StepStatus          `json:"steps,omitempty"`
	Delta       *models.DeltaSummary  `json:"delta,omitempty"`
	SpotCounts  map[string]int        `json:"spotCounts,omitempty"`
	Gold        *GoldSummary          `json:"gold,omitempty"`
	Runs        []RunSummary          `json:"runs,omitempty"`
	Actions     []ActionItem          `json:"actions"`
	Streaks     []models.Streak       `json:"streaks,omitempty"`
	Curation    []CurationAction      `json:"curation,omitempty"`
	ZeroPages   []string              `json:"zeroPageVenues,omitempty"`
}

// Builder assembles reports from the data root, the store and the journal.
// store and journal may be nil; their sections are then omitted.
type Builder struct {
	layout  datadir.Layout
	store   Store
	journal Journal
	now     func() time.Time
	log     *logging.ComponentLogger
}

func NewBuilder(layout datadir.Layout, store Store, journal Journal, log *logging.Logger) *Builder {
	return &Builder{
		layout:  layout,
		store:   store,
		journal: journal,
		now:     time.Now,
		log:     log.WithComponent("report"),
	}
}

// Generate builds the report for one run date (YYYYMMDD), or for the latest
// manifest when date is empty. A missing manifest is not fatal; the report
// then carries store-side sections only.
func (b *Builder) Generate(ctx context.Context, date string) (*Report, error) {
	r := &Report{Date: date, GeneratedAt: b.now()}

	var (
		m   *models.Manifest
		err error
	)
	if date == "" {
		m, err = LatestManifest(b.layout)
	} else {
		m, err = LoadManifest(b.layout, date)
	}
	if err != nil {
		b.log.Warn("no manifest for report", logging.String("cause", err.Error()))
	}
	if m != nil {
		r.Manifest = m
		r.Date = m.Date
		r.Steps = Pivot(m)
	}

	if delta, err := loadDelta(b.layout); err == nil {
		r.Delta = delta
	}

	r.ZeroPages = b.zeroPageVenues()

	if b.store != nil {
		if counts, err := b.store.SpotCounts(ctx); err == nil {
			r.SpotCounts = counts
		}
		if total, found, needs, err := b.store.GoldStats(ctx); err == nil {
			r.Gold = &GoldSummary{Total: total, Found: found, NeedsLLM: needs}
		}
		if streaks, err := b.store.TopStreaks(ctx, streakLeaderCount); err == nil {
			r.Streaks = streaks
		}
		if runs, err := b.store.ListRecentRuns(ctx, runHistoryCount); err == nil {
			r.Runs = runHistory(runs)
		}
	}

	r.Actions = b.buildActions(ctx, r)
	r.Curation = b.recentCuration(ctx)
	return r, nil
}

// buildActions fills the high/medium/low attention buckets.
func (b *Builder) buildActions(ctx context.Context, r *Report) []ActionItem {
	var items []ActionItem
	add := func(severity, format string, args ...any) {
		items = append(items, ActionItem{Severity: severity, Message: fmt.Sprintf(format, args...)})
	}

	if m := r.Manifest; m != nil {
		if m.Status == models.RunFailed || m.Status == models.RunFailedStale {
			add(SeverityHigh, "pipeline run %s ended %s", m.RunID, m.Status)
		}
		for _, step := range models.StepOrder() {
			rec, ok := m.Steps[step]
			if !ok {
				continue
			}
			switch rec.Status {
			case models.StepFailed:
				add(SeverityHigh, "step %s failed: %s", step, rec.Reason)
			case models.StepSkipped:
				switch {
				case strings.Contains(rec.Reason, "LLM limit hit"):
					add(SeverityMedium, "step %s skipped over budget: %s", step, rec.Reason)
				case strings.Contains(rec.Reason, "provider limit"):
					add(SeverityMedium, "step %s skipped: %s", step, rec.Reason)
				}
			}
		}
	}

	if failed := failedRuns(r.Runs); failed >= 2 {
		add(SeverityMedium, "%d of the last %d runs failed", failed, len(r.Runs))
	}

	if b.store != nil {
		if pending, err := b.store.ListSpotsByStatus(ctx, models.SpotPending); err == nil && len(pending) > 0 {
			oldest := pending[len(pending)-1]
			add(SeverityMedium, "%d spots pending curation, oldest %q since %s",
				len(pending), oldest.Title, oldest.CreatedAt.Format("2006-01-02"))
		}
		if stats, err := b.store.ReviewStats(ctx); err == nil {
			if unsure := stats[models.ReviewUnsure]; unsure > 0 {
				add(SeverityMedium, "%d borderline extractions awaiting a decision", unsure)
			}
		}
		if flagged, err := b.store.ListWatchlist(ctx, models.WatchlistFlagged); err == nil {
			for _, e := range flagged {
				add(SeverityLow, "flagged venue %s (%s): %s", e.Name, e.VenueID, e.Reason)
			}
		}
	}

	if n := len(r.ZeroPages); n > 0 {
		add(SeverityLow, "%d venues fetched zero pages: %s", n, strings.Join(r.ZeroPages, ", "))
	}
	return items
}

// runHistory flattens store rows into report rows, newest first. The store
// is authoritative here, not the manifests: a run that crashed before its
// first manifest write still shows up.
func runHistory(runs []models.PipelineRun) []RunSummary {
	var out []RunSummary
	for _, run := range runs {
		row := RunSummary{RunID: run.ID, Date: run.RunDate, Status: run.Status}
		if run.FinishedAt != nil {
			row.Duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		out = append(out, row)
	}
	return out
}

// failedRuns counts failed and failed_stale rows in the history strip.
func failedRuns(runs []RunSummary) int {
	n := 0
	for _, r := range runs {
		if r.Status == models.RunFailed || r.Status == models.RunFailedStale {
			n++
		}
	}
	return n
}

// recentCuration replays the journal window, keeping curation decisions and
// dropping run lifecycle noise.
func (b *Builder) recentCuration(ctx context.Context) []CurationAction {
	if b.journal == nil {
		return nil
	}
	stored, err := b.journal.ListSince(ctx, b.now().Add(-curationWindow))
	if err != nil {
		b.log.Warn("journal window read failed", logging.String("cause", err.Error()))
		return nil
	}

	var out []CurationAction
	for _, se := range stored {
		if strings.HasPrefix(se.Type, "run.") {
			continue
		}
		a := CurationAction{At: se.Ts, Type: se.Type, Subject: se.Subject}
		if se.Actor != nil {
			a.Actor = *se.Actor
		}
		out = append(out, a)
	}
	return out
}

// zeroPageVenues walks the merged documents and lists venues whose fetch
// produced nothing, capped for readability.
func (b *Builder) zeroPageVenues() []string {
	entries, err := os.ReadDir(b.layout.MergedDir())
	if err != nil {
		return nil
	}
	var out []string
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		var doc models.MergedDocument
		if err := datadir.ReadJSON(b.layout.MergedPath(strings.TrimSuffix(de.Name(), ".json")), &doc); err != nil {
			continue
		}
		if len(doc.Pages) == 0 {
			out = append(out, doc.VenueID)
			if len(out) >= zeroPageListCap {
				break
			}
		}
	}
	return out
}

// SnapshotSpots writes the approved serving set to reporting/spots.json so
// downstream consumers read one stable file instead of the database.
// Returns the number of spots written.
func (b *Builder) SnapshotSpots(ctx context.Context) (int, error) {
	if b.store == nil {
		return 0, errs.NewConfig("report.SnapshotSpots", "no store configured", nil)
	}
	approved, err := b.store.ListApprovedSpots(ctx)
	if err != nil {
		return 0, err
	}
	snapshot := struct {
		GeneratedAt time.Time     `json:"generatedAt"`
		Count       int           `json:"count"`
		Spots       []models.Spot `json:"spots"`
	}{GeneratedAt: b.now(), Count: len(approved), Spots: approved}

	if err := datadir.WriteJSONAtomic(b.layout.SpotsReportPath(), snapshot); err != nil {
		return 0, err
	}
	return len(approved), nil
}

// Pivot renders a manifest into ordered step rows.
func Pivot(m *models.Manifest) []StepStatus {
	var rows []StepStatus
	for _, step := range models.StepOrder() {
		rec, ok := m.Steps[step]
		if !ok {
			continue
		}
		row := StepStatus{
			Step:   step,
			Status: rec.Status,
			Items:  rec.Items,
			Reason: rec.Reason,
		}
		if rec.FinishedAt != nil {
			row.Duration = rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, row)
	}
	return rows
}

// LoadManifest reads the manifest for one run date.
func LoadManifest(layout datadir.Layout, date string) (*models.Manifest, error) {
	var m models.Manifest
	if err := datadir.ReadJSON(layout.ManifestPath(date), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LatestManifest finds the newest manifest in the reporting directory. Run
// dates are YYYYMMDD, so lexicographic order is chronological order.
func LatestManifest(layout datadir.Layout) (*models.Manifest, error) {
	entries, err := os.ReadDir(layout.ReportingDir())
	if err != nil {
		return nil, errs.NewTransient("report.LatestManifest", "cannot read reporting directory", err)
	}

	var dates []string
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, "manifest-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(name, "manifest-"), ".json"))
	}
	if len(dates) == 0 {
		return nil, errs.NewTransient("report.LatestManifest", "no manifests found", nil)
	}
	sort.Strings(dates)
	return LoadManifest(layout, dates[len(dates)-1])
}

func loadDelta(layout datadir.Layout) (*models.DeltaSummary, error) {
	var d models.DeltaSummary
	if err := datadir.ReadJSON(layout.DeltaSummaryPath(), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

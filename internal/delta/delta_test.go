package delta

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/models"
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

func testLayout(t *testing.T) datadir.Layout {
	t.Helper()
	layout := datadir.New(t.TempDir())
	if err := layout.EnsureTree(); err != nil {
		t.Fatalf("ensure tree: %v", err)
	}
	return layout
}

func writeTrimmed(t *testing.T, path, venueID string, texts ...string) {
	t.Helper()
	doc := models.TrimmedDocument{
		VenueID:   venueID,
		VenueName: "Venue " + venueID,
		ScrapedAt: time.Now(),
	}
	for i, text := range texts {
		doc.Pages = append(doc.Pages, models.MergedPage{
			URL:  fmt.Sprintf("https://example.com/%s/%d", venueID, i),
			Text: text,
			Hash: fmt.Sprintf("hash%d", i),
		})
	}
	if err := datadir.WriteJSONAtomic(path, &doc); err != nil {
		t.Fatalf("write trimmed %s: %v", venueID, err)
	}
}

func workSetFiles(t *testing.T, layout datadir.Layout) []string {
	t.Helper()
	entries, err := os.ReadDir(layout.TrimmedIncrementalDir())
	if err != nil {
		t.Fatalf("read work-set: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunPartitionsVenues(t *testing.T) {
	layout := testLayout(t)

	writeTrimmed(t, layout.TrimmedPreviousPath("v-changed"), "v-changed", "Happy Hour 4-7pm")
	writeTrimmed(t, layout.TrimmedPreviousPath("v-same"), "v-same", "Trivia Wednesday")

	writeTrimmed(t, layout.TrimmedAllPath("v-new"), "v-new", "Brand new menu")
	writeTrimmed(t, layout.TrimmedAllPath("v-changed"), "v-changed", "Happy Hour 3-6pm")
	// Same content plus a timestamp the normalizer strips: must stay unchanged.
	writeTrimmed(t, layout.TrimmedAllPath("v-same"), "v-same", "Trivia Wednesday\n2024-06-03T10:00:00Z")

	det := New(layout, nil, testLogger(t))
	now := time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC)
	summary, err := det.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Date != "20260824" {
		t.Errorf("date = %q", summary.Date)
	}
	if len(summary.New) != 1 || summary.New[0] != "v-new" {
		t.Errorf("new = %v", summary.New)
	}
	if len(summary.Changed) != 1 || summary.Changed[0] != "v-changed" {
		t.Errorf("changed = %v", summary.Changed)
	}
	if len(summary.Unchanged) != 1 || summary.Unchanged[0] != "v-same" {
		t.Errorf("unchanged = %v", summary.Unchanged)
	}
	if summary.Summary != "1 new, 1 changed, 1 unchanged of 3 venues" {
		t.Errorf("summary = %q", summary.Summary)
	}
	if summary.WorkSetSize() != 2 {
		t.Errorf("work-set size = %d", summary.WorkSetSize())
	}

	got := workSetFiles(t, layout)
	if len(got) != 2 {
		t.Fatalf("work-set = %v", got)
	}
	for _, want := range []string{"v-new.json", "v-changed.json"} {
		if !datadir.Exists(filepath.Join(layout.TrimmedIncrementalDir(), want)) {
			t.Errorf("missing %s in work-set", want)
		}
	}

	var onDisk models.DeltaSummary
	if err := datadir.ReadJSON(layout.DeltaSummaryPath(), &onDisk); err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if onDisk.Date != "20260824" || len(onDisk.Changed) != 1 {
		t.Errorf("summary on disk = %+v", onDisk)
	}
}

func TestRunFirstEverRunIsAllNew(t *testing.T) {
	layout := testLayout(t)
	writeTrimmed(t, layout.TrimmedAllPath("a"), "a", "menu one")
	writeTrimmed(t, layout.TrimmedAllPath("b"), "b", "menu two")

	summary, err := New(layout, nil, testLogger(t)).Run(context.Background(), time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.New) != 2 || len(summary.Changed) != 0 || len(summary.Unchanged) != 0 {
		t.Fatalf("partition = %d/%d/%d", len(summary.New), len(summary.Changed), len(summary.Unchanged))
	}
	if summary.PreviousDate != "" {
		t.Errorf("previousDate = %q on first run", summary.PreviousDate)
	}
}

func TestRunCarriesPreviousDate(t *testing.T) {
	layout := testLayout(t)
	writeTrimmed(t, layout.TrimmedAllPath("a"), "a", "menu")

	prior := models.DeltaSummary{Date: "20260823", New: []string{}, Changed: []string{}, Unchanged: []string{}}
	if err := datadir.WriteJSONAtomic(layout.DeltaSummaryPath(), &prior); err != nil {
		t.Fatalf("seed prior summary: %v", err)
	}

	det := New(layout, nil, testLogger(t))
	now := time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC)

	summary, err := det.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.PreviousDate != "20260823" {
		t.Errorf("previousDate = %q", summary.PreviousDate)
	}

	// A rerun on the same day still compares against yesterday, so the
	// summary must keep pointing there instead of at itself.
	again, err := det.Run(context.Background(), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if again.PreviousDate != "20260823" {
		t.Errorf("rerun previousDate = %q", again.PreviousDate)
	}
}

func TestRunClearsStaleWorkSet(t *testing.T) {
	layout := testLayout(t)
	if err := datadir.WriteFileAtomic(layout.TrimmedIncrementalPath("stale"), []byte(`{}`)); err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	writeTrimmed(t, layout.TrimmedPreviousPath("a"), "a", "menu")
	writeTrimmed(t, layout.TrimmedAllPath("a"), "a", "menu")

	if _, err := New(layout, nil, testLogger(t)).Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := workSetFiles(t, layout); len(got) != 0 {
		t.Fatalf("work-set should be empty, got %v", got)
	}
}

// Noise-only rerenders across a large roster must not leak into the work-set;
// only venues with real text changes belong there.
func TestRunNoiseOnlyRosterStaysQuiet(t *testing.T) {
	layout := testLayout(t)

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("v-%03d", i)
		base := fmt.Sprintf("Venue %03d menu. Happy Hour 4-7pm.", i)
		writeTrimmed(t, layout.TrimmedPreviousPath(id), id,
			base+"\nUpdated 2024-06-01T00:00:00Z\nUA-12345678-1")

		today := base + "\nUpdated 2024-06-02T09:30:00Z\nUA-87654321-2"
		if i < 5 {
			today = base + " New special: $5 wings." + "\nUpdated 2024-06-02T09:30:00Z"
		}
		writeTrimmed(t, layout.TrimmedAllPath(id), id, today)
	}

	summary, err := New(layout, nil, testLogger(t)).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.New) != 0 {
		t.Errorf("new = %v", summary.New)
	}
	if len(summary.Changed) != 5 {
		t.Errorf("changed = %d, want 5: %v", len(summary.Changed), summary.Changed)
	}
	if len(summary.Unchanged) != 95 {
		t.Errorf("unchanged = %d, want 95", len(summary.Unchanged))
	}
	if got := workSetFiles(t, layout); len(got) != 5 {
		t.Errorf("work-set = %v", got)
	}
}

func TestRunDisabledRulesWidenTheDelta(t *testing.T) {
	layout := testLayout(t)
	writeTrimmed(t, layout.TrimmedPreviousPath("a"), "a", "menu\n2024-06-01T00:00:00Z")
	writeTrimmed(t, layout.TrimmedAllPath("a"), "a", "menu\n2024-06-02T00:00:00Z")

	// With only an unrelated rule enabled, the timestamp counts as content.
	summary, err := New(layout, []string{"gtm-ids"}, testLogger(t)).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.Changed) != 1 {
		t.Fatalf("changed = %v", summary.Changed)
	}
}

func TestRunCorruptTrimmedDocSkipped(t *testing.T) {
	layout := testLayout(t)
	if err := datadir.WriteFileAtomic(layout.TrimmedAllPath("bad"), []byte("{not json")); err != nil {
		t.Fatalf("seed corrupt: %v", err)
	}
	writeTrimmed(t, layout.TrimmedAllPath("good"), "good", "menu")

	summary, err := New(layout, nil, testLogger(t)).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.New) != 1 || summary.New[0] != "good" || len(summary.Changed)+len(summary.Unchanged) != 0 {
		t.Fatalf("partition = %+v", summary)
	}
}

func TestRunWithoutTrimmedDirWritesEmptySummary(t *testing.T) {
	layout := testLayout(t)
	if err := os.RemoveAll(layout.TrimmedAllDir()); err != nil {
		t.Fatalf("remove: %v", err)
	}

	summary, err := New(layout, nil, testLogger(t)).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.WorkSetSize() != 0 {
		t.Errorf("work-set size = %d", summary.WorkSetSize())
	}
	if !datadir.Exists(layout.DeltaSummaryPath()) {
		t.Error("summary file not written")
	}
}

func TestRunWorkSetBytesMatchSource(t *testing.T) {
	layout := testLayout(t)
	writeTrimmed(t, layout.TrimmedAllPath("a"), "a", "menu text")

	if _, err := New(layout, nil, testLogger(t)).Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("run: %v", err)
	}

	src, err := os.ReadFile(layout.TrimmedAllPath("a"))
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	dst, err := os.ReadFile(layout.TrimmedIncrementalPath("a"))
	if err != nil {
		t.Fatalf("read work-set copy: %v", err)
	}
	if string(src) != string(dst) {
		t.Error("work-set copy differs from trimmed source")
	}
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"venue-intel-pipeline/internal/models"
)

// testStore connects to the test database or skips. Tests create their own
// rows with unique ids so parallel packages do not collide.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL_TEST")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("DATABASE_URL_TEST or DATABASE_URL not set; skipping store test")
	}
	s, err := New(url)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func strPtr(s string) *string { return &s }

func TestVenueUpsertNeverShrinks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := uniqueID("test-venue")

	first := models.Venue{
		ID: id, Name: "The Griffon", Lat: 32.78, Lng: -79.93,
		Area: strPtr("Downtown"), Website: strPtr("https://thegriffon.example.com"),
		Active: true,
	}
	created, err := s.UpsertVenues(ctx, []models.Venue{first}, "test")
	if err != nil {
		t.Fatalf("UpsertVenues: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}

	// Second pass carries no website; the stored one must survive.
	second := models.Venue{
		ID: id, Name: "The Griffon Pub", Lat: 32.78, Lng: -79.93,
		Phone: strPtr("+18435550199"), Active: true,
	}
	created, err = s.UpsertVenues(ctx, []models.Venue{second}, "test")
	if err != nil {
		t.Fatalf("UpsertVenues second pass: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0 for update", created)
	}

	got, err := s.GetVenue(ctx, id)
	if err != nil {
		t.Fatalf("GetVenue: %v", err)
	}
	if got == nil {
		t.Fatal("GetVenue returned nil for existing venue")
	}
	if got.Name != "The Griffon Pub" {
		t.Errorf("Name = %q, want updated name", got.Name)
	}
	if got.Website == nil || *got.Website != "https://thegriffon.example.com" {
		t.Errorf("Website = %v, want preserved original", got.Website)
	}
	if got.Phone == nil || *got.Phone != "+18435550199" {
		t.Errorf("Phone = %v, want merged phone", got.Phone)
	}

	audits, err := s.ListAuditsForRow(ctx, "venues", id)
	if err != nil {
		t.Fatalf("ListAuditsForRow: %v", err)
	}
	if len(audits) != 2 {
		t.Fatalf("audit rows = %d, want 2", len(audits))
	}
	if audits[0].Action != "INSERT" || audits[1].Action != "UPDATE" {
		t.Errorf("audit actions = %s, %s; want INSERT, UPDATE", audits[0].Action, audits[1].Action)
	}
	for _, a := range audits {
		if a.Diff == nil || *a.Diff == "" {
			t.Errorf("audit row %d has empty diff", a.ID)
		}
		if a.Actor != "test" {
			t.Errorf("audit actor = %q, want test", a.Actor)
		}
	}
}

func TestSpotEditLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	venueID := uniqueID("test-venue")

	spot := &models.Spot{
		VenueID:     &venueID,
		Title:       "Edit Lifecycle Bar",
		Description: "5-7pm Mon-Fri",
		Type:        "Happy Hour",
		Source:      models.SourceAutomated,
		Status:      models.SpotApproved,
	}
	id, err := s.InsertSpot(ctx, spot, "pipeline")
	if err != nil {
		t.Fatalf("InsertSpot: %v", err)
	}

	edit := &models.SpotEdit{Title: strPtr("Edited Bar"), Description: strPtr("4-6pm daily")}
	if err := s.SetPendingEdit(ctx, id, edit, "reporter"); err != nil {
		t.Fatalf("SetPendingEdit: %v", err)
	}

	got, err := s.GetSpot(ctx, id)
	if err != nil {
		t.Fatalf("GetSpot: %v", err)
	}
	if !got.HasPendingEdit() {
		t.Fatal("spot should have a pending edit")
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := s.ApplyPendingEditTx(tx, got, "admin")
		return err
	})
	if err != nil {
		t.Fatalf("ApplyPendingEditTx: %v", err)
	}

	got, err = s.GetSpot(ctx, id)
	if err != nil {
		t.Fatalf("GetSpot after apply: %v", err)
	}
	if got.Title != "Edited Bar" || got.Description != "4-6pm daily" {
		t.Errorf("spot = %q / %q, want edited values", got.Title, got.Description)
	}
	if !got.ManualOverride {
		t.Error("manual_override should be set after an applied edit")
	}
	if got.HasPendingEdit() {
		t.Error("pending_edit should be cleared after apply")
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.DeleteSpotTx(tx, got, "admin")
	})
	if err != nil {
		t.Fatalf("DeleteSpotTx: %v", err)
	}
	gone, err := s.GetSpot(ctx, id)
	if err != nil {
		t.Fatalf("GetSpot after delete: %v", err)
	}
	if gone != nil {
		t.Error("spot should be gone after delete")
	}

	audits, err := s.ListAuditsForRow(ctx, "spots", fmt.Sprint(id))
	if err != nil {
		t.Fatalf("ListAuditsForRow: %v", err)
	}
	if len(audits) != 4 {
		t.Errorf("audit rows = %d, want 4 (insert, queue, apply, delete)", len(audits))
	}
	if last := audits[len(audits)-1]; last.Action != "DELETE" {
		t.Errorf("last audit action = %s, want DELETE", last.Action)
	}
}

func TestCounterAccumulates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	name := uniqueID("test-counter")

	for i := 1; i <= 3; i++ {
		total, err := s.AddCounter(ctx, name, 2)
		if err != nil {
			t.Fatalf("AddCounter: %v", err)
		}
		if total != i*2 {
			t.Errorf("total after %d adds = %d, want %d", i, total, i*2)
		}
	}

	n, err := s.GetCounter(ctx, name)
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if n != 6 {
		t.Errorf("GetCounter = %d, want 6", n)
	}
}

func TestRecoverStaleRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	stale := &models.PipelineRun{
		ID:        uniqueID("run"),
		StartedAt: time.Now().Add(-3 * time.Hour),
		Status:    models.RunRunning,
		RunDate:   "20260101",
		Steps:     map[string]models.StepRecord{},
	}
	if err := s.CreateRun(ctx, stale); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	n, err := s.RecoverStaleRuns(ctx, 2*time.Hour)
	if err != nil {
		t.Fatalf("RecoverStaleRuns: %v", err)
	}
	if n < 1 {
		t.Errorf("recovered = %d, want at least 1", n)
	}

	got, err := s.GetRun(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunFailedStale {
		t.Errorf("status = %q, want %q", got.Status, models.RunFailedStale)
	}
	if got.FinishedAt == nil {
		t.Error("recovered run should have finished_at set")
	}
}

func TestWatchlistExclusionSet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	venueID := uniqueID("test-venue")

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.UpsertWatchlistTx(tx, &models.WatchlistEntry{
			VenueID: venueID,
			Name:    "Exclusion Test Venue",
			Status:  models.WatchlistExcluded,
			Reason:  "admin report",
		}, "admin")
	})
	if err != nil {
		t.Fatalf("UpsertWatchlistTx: %v", err)
	}

	excluded, err := s.IsExcluded(ctx, venueID)
	if err != nil {
		t.Fatalf("IsExcluded: %v", err)
	}
	if !excluded {
		t.Error("venue should be excluded")
	}

	set, err := s.ExcludedSet(ctx)
	if err != nil {
		t.Fatalf("ExcludedSet: %v", err)
	}
	if !set[venueID] {
		t.Error("ExcludedSet should contain the venue")
	}
}

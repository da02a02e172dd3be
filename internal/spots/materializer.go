// Package spots projects gold extraction output into the user-visible spots
// table. It is the only pipeline stage that writes curated data, so it is
// also where curation state (watchlist exclusion, manual overrides, pending
// edits) is honored rather than overwritten.
package spots

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/logging"
	"venue-intel-pipeline/pkg/utils"
)

// actorPipeline is the audit actor for automated writes.
const actorPipeline = "pipeline"

// SpotStore is the slice of the relational store the materializer touches.
type SpotStore interface {
	GetVenue(ctx context.Context, id string) (*models.Venue, error)
	ExcludedSet(ctx context.Context) (map[string]bool, error)
	DeprecatedActivities(ctx context.Context) (map[string]bool, error)
	GetSpotByVenueAndType(ctx context.Context, venueID, typ string) (*models.Spot, error)
	InsertSpot(ctx context.Context, sp *models.Spot, actor string) (int64, error)
	UpdateSpotContent(ctx context.Context, sp *models.Spot, actor string) error
	DeleteSpotsForVenue(ctx context.Context, venueID, actor string) (int64, error)
	GetStreak(ctx context.Context, venueID, typ string) (*models.Streak, error)
	UpsertStreak(ctx context.Context, st *models.Streak) error
}

// eligibility bundles the per-run publish specifications, built once per
// pass from the watchlist and the activity roster. Checks stay separate
// rather than one composed gate so the stats can attribute every skip.
type eligibility struct {
	venueIncluded   Specification[Candidate]
	hasOffer        Specification[Candidate]
	activityCurrent Specification[Candidate]
	confident       Specification[Candidate]
}

// Stats summarizes one materialization pass for the run manifest.
type Stats struct {
	GoldRecords  int64 `json:"goldRecords"`
	NoOffer      int64 `json:"noOffer"`
	MissingVenue int64 `json:"missingVenue"`
	Excluded     int64 `json:"excludedVenues"`
	Purged       int64 `json:"purgedSpots"`
	Deprecated   int64 `json:"deprecatedEntries"`
	Created      int64 `json:"created"`
	Updated      int64 `json:"updated"`
	Unchanged    int64 `json:"unchanged"`
	Deferred     int64 `json:"deferredPendingEdit"`
	Failed       int64 `json:"failed"`
}

type Materializer struct {
	layout datadir.Layout
	store  SpotStore
	log    *logging.ComponentLogger
}

func New(layout datadir.Layout, store SpotStore, log *logging.Logger) *Materializer {
	return &Materializer{
		layout: layout,
		store:  store,
		log:    log.WithComponent("spots"),
	}
}

// Run walks every gold record on disk and reconciles the spots table against
// it. The pass is idempotent: re-running against unchanged gold produces no
// writes. Per-venue failures are counted and logged, not fatal; only setup
// failures (watchlist, activity roster, gold directory) abort the step.
func (m *Materializer) Run(ctx context.Context, now time.Time) (*Stats, error) {
	stats := &Stats{}

	excluded, err := m.store.ExcludedSet(ctx)
	if err != nil {
		return stats, err
	}
	deprecated, err := m.store.DeprecatedActivities(ctx)
	if err != nil {
		return stats, err
	}
	elig := eligibility{
		venueIncluded:   VenueIncluded(excluded),
		hasOffer:        HasOffer(),
		activityCurrent: ActivityCurrent(deprecated),
		confident:       ConfidentExtraction(),
	}

	entries, err := os.ReadDir(m.layout.GoldDir())
	if err != nil {
		if os.IsNotExist(err) {
			m.log.Info("no gold records to materialize")
			return stats, nil
		}
		return stats, errs.NewTransient("spots.Run", "cannot read gold directory", err)
	}

	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, errs.NewTransient("spots.Run", "materialization cancelled", err)
		}
		venueID := strings.TrimSuffix(de.Name(), ".json")
		if err := m.materializeVenue(ctx, venueID, elig, now, stats); err != nil {
			stats.Failed++
			m.log.Warn("venue materialization failed",
				logging.String("venue_id", venueID),
				logging.String("cause", err.Error()))
		}
	}

	m.log.Info("materialization complete",
		logging.Int64("gold", stats.GoldRecords),
		logging.Int64("created", stats.Created),
		logging.Int64("updated", stats.Updated),
		logging.Int64("unchanged", stats.Unchanged),
		logging.Int64("purged", stats.Purged),
		logging.Int64("failed", stats.Failed))
	return stats, nil
}

func (m *Materializer) materializeVenue(ctx context.Context, venueID string, elig eligibility, now time.Time, stats *Stats) error {
	var rec models.GoldRecord
	if err := datadir.ReadJSON(m.layout.GoldPath(venueID), &rec); err != nil {
		return err
	}
	stats.GoldRecords++
	cand := Candidate{VenueID: venueID, Record: &rec}

	// Exclusion is enforced, not just skipped: any spots that predate the
	// watchlist entry are swept out here.
	if !elig.venueIncluded.IsSatisfiedBy(ctx, cand) {
		stats.Excluded++
		purged, err := m.store.DeleteSpotsForVenue(ctx, venueID, actorPipeline)
		if err != nil {
			return err
		}
		if purged > 0 {
			stats.Purged += purged
			m.log.Info("excluded venue spots removed",
				logging.String("venue_id", venueID),
				logging.Int64("count", purged))
		}
		return nil
	}

	if !elig.hasOffer.IsSatisfiedBy(ctx, cand) {
		stats.NoOffer++
		return nil
	}

	venue, err := m.store.GetVenue(ctx, venueID)
	if err != nil {
		return err
	}
	if venue == nil {
		stats.MissingVenue++
		m.log.Warn("gold record for unknown venue", logging.String("venue_id", venueID))
		return nil
	}

	for _, entry := range rec.Entries() {
		cand.Entry = entry
		if !elig.activityCurrent.IsSatisfiedBy(ctx, cand) {
			stats.Deprecated++
			continue
		}
		if err := m.upsertSpot(ctx, venue, cand, elig, now, stats); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) upsertSpot(ctx context.Context, venue *models.Venue, cand Candidate, elig eligibility, now time.Time, stats *Stats) error {
	rec, entry := cand.Record, cand.Entry
	existing, err := m.store.GetSpotByVenueAndType(ctx, venue.ID, entry.Type)
	if err != nil {
		return err
	}

	desc := describeEntry(entry)

	if existing == nil {
		status := models.SpotApproved
		if !elig.confident.IsSatisfiedBy(ctx, cand) {
			status = models.SpotPending
		}
		sp := &models.Spot{
			VenueID:       &venue.ID,
			Title:         venue.Name,
			Description:   desc,
			Type:          entry.Type,
			Lat:           venue.Lat,
			Lng:           venue.Lng,
			Area:          venue.Area,
			Source:        models.SourceAutomated,
			Status:        status,
			SourceURL:     venue.Website,
			PromotionTime: promotionTime(entry),
			Confidence:    rec.Confidence,
		}
		if _, err := m.store.InsertSpot(ctx, sp, actorPipeline); err != nil {
			return err
		}
		stats.Created++
		m.log.Info("spot created",
			logging.String("venue_id", venue.ID),
			logging.String("type", entry.Type),
			logging.String("status", status))
		return nil
	}

	// An admin decision is outstanding; the automated path defers the whole
	// refresh until the edit queue clears.
	if existing.HasPendingEdit() {
		stats.Deferred++
		m.log.Debug("spot refresh deferred behind pending edit",
			logging.String("venue_id", venue.ID),
			logging.String("type", entry.Type))
		return nil
	}

	next := *existing
	next.Lat = venue.Lat
	next.Lng = venue.Lng
	next.Area = venue.Area
	next.Confidence = rec.Confidence
	next.SourceURL = venue.Website
	next.PromotionTime = promotionTime(entry)
	if !existing.ManualOverride {
		next.Title = venue.Name
		next.Description = desc
		next.Type = entry.Type
	}

	if !spotContentChanged(existing, &next) {
		stats.Unchanged++
		return nil
	}

	if err := m.store.UpdateSpotContent(ctx, &next, actorPipeline); err != nil {
		return err
	}
	stats.Updated++

	if next.Description != existing.Description {
		m.log.Info(fmt.Sprintf("Updated spot: %s", next.Title),
			logging.String("venue_id", venue.ID),
			logging.String("type", next.Type))
		if err := m.bumpStreak(ctx, venue, next.Type, now); err != nil {
			m.log.Warn("streak update failed",
				logging.String("venue_id", venue.ID),
				logging.String("cause", err.Error()))
		}
	}
	return nil
}

// bumpStreak counts consecutive days with content changes for a venue+type.
// One count per day; a day without a change breaks the chain back to 1 on
// the next change.
func (m *Materializer) bumpStreak(ctx context.Context, venue *models.Venue, typ string, now time.Time) error {
	today := now.Format("20060102")
	st, err := m.store.GetStreak(ctx, venue.ID, typ)
	if err != nil {
		return err
	}

	switch {
	case st == nil:
		st = &models.Streak{VenueID: venue.ID, Type: typ, Streak: 1}
	case st.LastDate == today:
		return nil
	case st.LastDate == now.AddDate(0, 0, -1).Format("20060102"):
		st.Streak++
	default:
		st.Streak = 1
	}
	st.Name = venue.Name
	st.LastDate = today
	return m.store.UpsertStreak(ctx, st)
}

// describeEntry renders the user-facing description: times, days and the
// specials list separated by bullets. An offer with no schedule details
// still gets a readable line.
func describeEntry(e models.PromotionEntry) string {
	var parts []string
	if t := strings.TrimSpace(e.Times); t != "" {
		parts = append(parts, t)
	}
	if d := strings.TrimSpace(e.Days); d != "" {
		parts = append(parts, d)
	}
	specials := make([]string, 0, len(e.Specials))
	for _, sp := range e.Specials {
		if sp = strings.TrimSpace(sp); sp != "" {
			specials = append(specials, sp)
		}
	}
	if len(specials) > 0 {
		parts = append(parts, strings.Join(specials, ", "))
	}
	if len(parts) == 0 {
		typ := e.Type
		if typ == "" {
			typ = "Happy Hour"
		}
		return typ + " available"
	}
	return strings.Join(parts, " • ")
}

// promotionTime is the compact schedule column shown in listings.
func promotionTime(e models.PromotionEntry) *string {
	combined := utils.CollapseWhitespace(e.Days + " " + e.Times)
	if combined == "" {
		return nil
	}
	return &combined
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func spotContentChanged(prev, next *models.Spot) bool {
	return prev.Title != next.Title ||
		prev.Description != next.Description ||
		prev.Type != next.Type ||
		prev.Lat != next.Lat ||
		prev.Lng != next.Lng ||
		prev.Confidence != next.Confidence ||
		!strPtrEq(prev.Area, next.Area) ||
		!strPtrEq(prev.SourceURL, next.SourceURL) ||
		!strPtrEq(prev.PromotionTime, next.PromotionTime)
}

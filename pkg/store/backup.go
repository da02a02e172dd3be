package store

import (
	"context"
	"time"

	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// BackupDocument is the logical dump written by Backup. Operational history
// (pipeline_runs, audit_logs, events) is excluded: it grows without bound
// and is not needed to restore curated state.
type BackupDocument struct {
	CreatedAt  time.Time               `json:"createdAt"`
	Venues     []models.Venue          `json:"venues"`
	Spots      []models.Spot           `json:"spots"`
	Watchlist  []models.WatchlistEntry `json:"watchlist"`
	Streaks    []models.Streak         `json:"streaks"`
	Activities []models.Activity       `json:"activities"`
	Config     map[string]string       `json:"config"`
}

// Backup writes a dated JSON dump of the curated tables into the backups
// directory and returns its path. Retention is the caller's job.
func (s *Store) Backup(ctx context.Context, layout datadir.Layout, now time.Time) (string, error) {
	doc := BackupDocument{CreatedAt: now}

	venues, err := s.dumpVenues(ctx)
	if err != nil {
		return "", err
	}
	doc.Venues = venues

	spots, err := s.dumpSpots(ctx)
	if err != nil {
		return "", err
	}
	doc.Spots = spots

	for _, status := range []string{models.WatchlistExcluded, models.WatchlistFlagged} {
		entries, err := s.ListWatchlist(ctx, status)
		if err != nil {
			return "", err
		}
		doc.Watchlist = append(doc.Watchlist, entries...)
	}

	streaks, err := s.dumpStreaks(ctx)
	if err != nil {
		return "", err
	}
	doc.Streaks = streaks

	activities, err := s.ListActivities(ctx)
	if err != nil {
		return "", err
	}
	doc.Activities = activities

	kv, err := s.dumpConfig(ctx)
	if err != nil {
		return "", err
	}
	doc.Config = kv

	path := layout.BackupPath(now)
	if err := datadir.WriteJSONAtomic(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) dumpVenues(ctx context.Context) ([]models.Venue, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `SELECT `+venueColumns+` FROM venues ORDER BY id ASC`)
	if err != nil {
		return nil, errs.NewDB("store.dumpVenues", "failed to query venues", err)
	}
	defer rows.Close()

	var venues []models.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, errs.NewDB("store.dumpVenues", "failed to scan venue row", err)
		}
		venues = append(venues, *v)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.dumpVenues", "row iteration error", err)
	}
	return venues, nil
}

func (s *Store) dumpSpots(ctx context.Context) ([]models.Spot, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `SELECT `+spotColumns+` FROM spots ORDER BY id ASC`)
	if err != nil {
		return nil, errs.NewDB("store.dumpSpots", "failed to query spots", err)
	}
	defer rows.Close()
	return collectSpots(rows, "store.dumpSpots")
}

func (s *Store) dumpStreaks(ctx context.Context) ([]models.Streak, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT venue_id, type, name, last_date, streak, updated_at
	          FROM streaks ORDER BY venue_id ASC, type ASC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.NewDB("store.dumpStreaks", "failed to query streaks", err)
	}
	defer rows.Close()

	var streaks []models.Streak
	for rows.Next() {
		var st models.Streak
		if err := rows.Scan(&st.VenueID, &st.Type, &st.Name, &st.LastDate, &st.Streak, &st.UpdatedAt); err != nil {
			return nil, errs.NewDB("store.dumpStreaks", "failed to scan streak row", err)
		}
		streaks = append(streaks, st)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.dumpStreaks", "row iteration error", err)
	}
	return streaks, nil
}

func (s *Store) dumpConfig(ctx context.Context) (map[string]string, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `SELECT name, value FROM config ORDER BY name ASC`)
	if err != nil {
		return nil, errs.NewDB("store.dumpConfig", "failed to query config", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, errs.NewDB("store.dumpConfig", "failed to scan config row", err)
		}
		kv[name] = value
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.dumpConfig", "row iteration error", err)
	}
	return kv, nil
}

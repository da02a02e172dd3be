package store

import (
	"context"
	"database/sql"

	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// UpsertWatchlistTx adds or updates a watchlist entry inside an open
// transaction, audited. One row per venue; a later status overwrites an
// earlier one.
func (s *Store) UpsertWatchlistTx(tx *sql.Tx, e *models.WatchlistEntry, actor string) error {
	query := `INSERT INTO watchlist (venue_id, name, area, status, reason)
	          VALUES (?, ?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE
	            name = VALUES(name),
	            area = VALUES(area),
	            status = VALUES(status),
	            reason = VALUES(reason),
	            updated_at = NOW()`
	if _, err := tx.Exec(query, e.VenueID, e.Name, e.Area, e.Status, e.Reason); err != nil {
		return errs.NewDB("store.UpsertWatchlistTx", "failed to upsert watchlist entry", err)
	}
	return appendAudit(tx, "watchlist", e.VenueID, "INSERT", actor, e)
}

// IsExcluded reports whether a venue is on the watchlist as excluded.
func (s *Store) IsExcluded(ctx context.Context, venueID string) (bool, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	var n int
	query := `SELECT COUNT(*) FROM watchlist WHERE venue_id = ? AND status = ?`
	if err := s.conn.QueryRowContext(ctx, query, venueID, models.WatchlistExcluded).Scan(&n); err != nil {
		return false, errs.NewDB("store.IsExcluded", "failed to check watchlist", err)
	}
	return n > 0, nil
}

// ExcludedSet returns all excluded venue ids as a set. The materializer
// loads this once per run instead of probing per venue.
func (s *Store) ExcludedSet(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT venue_id FROM watchlist WHERE status = ?`
	rows, err := s.conn.QueryContext(ctx, query, models.WatchlistExcluded)
	if err != nil {
		return nil, errs.NewDB("store.ExcludedSet", "failed to query watchlist", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.NewDB("store.ExcludedSet", "failed to scan watchlist row", err)
		}
		set[id] = true
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.ExcludedSet", "row iteration error", err)
	}
	return set, nil
}

// ListWatchlist returns entries in one status, most recently updated first.
func (s *Store) ListWatchlist(ctx context.Context, status string) ([]models.WatchlistEntry, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT venue_id, name, area, status, reason, updated_at
	          FROM watchlist WHERE status = ? ORDER BY updated_at DESC`
	rows, err := s.conn.QueryContext(ctx, query, status)
	if err != nil {
		return nil, errs.NewDB("store.ListWatchlist", "failed to query watchlist", err)
	}
	defer rows.Close()

	var entries []models.WatchlistEntry
	for rows.Next() {
		var e models.WatchlistEntry
		var area sql.NullString
		if err := rows.Scan(&e.VenueID, &e.Name, &area, &e.Status, &e.Reason, &e.UpdatedAt); err != nil {
			return nil, errs.NewDB("store.ListWatchlist", "failed to scan watchlist row", err)
		}
		if area.Valid {
			e.Area = &area.String
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.ListWatchlist", "row iteration error", err)
	}
	return entries, nil
}

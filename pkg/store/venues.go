package store

import (
	"context"
	"database/sql"

	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// venueColumns is the shared select list; keep in sync with scanVenue.
const venueColumns = `id, name, area, address, lat, lng, website, phone, zip_codes,
	address_components, operating_hours, active, created_at, updated_at`

// scanner covers *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

// scanVenue scans one venue row, converting nullable columns to pointers.
func scanVenue(sc scanner) (*models.Venue, error) {
	var v models.Venue
	var area, address, website, phone, zipCodes, addrComponents, hours sql.NullString
	var updatedAt sql.NullTime

	err := sc.Scan(
		&v.ID, &v.Name, &area, &address, &v.Lat, &v.Lng, &website, &phone,
		&zipCodes, &addrComponents, &hours, &v.Active, &v.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if area.Valid {
		v.Area = &area.String
	}
	if address.Valid {
		v.Address = &address.String
	}
	if website.Valid {
		v.Website = &website.String
	}
	if phone.Valid {
		v.Phone = &phone.String
	}
	if zipCodes.Valid {
		v.ZipCodes = &zipCodes.String
	}
	if addrComponents.Valid {
		v.AddressComponents = &addrComponents.String
	}
	if hours.Valid {
		v.OperatingHours = &hours.String
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		v.UpdatedAt = &t
	}

	return &v, nil
}

// GetVenue fetches one venue by id. Returns nil, nil when absent.
func (s *Store) GetVenue(ctx context.Context, id string) (*models.Venue, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	v, err := scanVenue(s.stmts["getVenue"].QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("store.GetVenue", "failed to get venue", err)
	}
	return v, nil
}

// ListActiveVenues returns active venues, optionally restricted to one area.
func (s *Store) ListActiveVenues(ctx context.Context, areaFilter string) ([]models.Venue, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + venueColumns + ` FROM venues WHERE active = 1`
	args := []any{}
	if areaFilter != "" {
		query += ` AND area = ?`
		args = append(args, areaFilter)
	}
	query += ` ORDER BY name ASC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewDB("store.ListActiveVenues", "failed to query venues", err)
	}
	defer rows.Close()

	var venues []models.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, errs.NewDB("store.ListActiveVenues", "failed to scan venue row", err)
		}
		venues = append(venues, *v)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.ListActiveVenues", "row iteration error", err)
	}
	return venues, nil
}

// ListVenuesWithWebsite returns the fetch roster: active venues that have a
// website, optionally restricted to one area. Watchlist exclusion does not
// apply here; excluded venues stay in the content pipeline and are suppressed
// at materialization.
func (s *Store) ListVenuesWithWebsite(ctx context.Context, areaFilter string) ([]models.Venue, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + venueColumns + ` FROM venues
	          WHERE active = 1 AND website IS NOT NULL AND website != ''`
	args := []any{}
	if areaFilter != "" {
		query += ` AND area = ?`
		args = append(args, areaFilter)
	}
	query += ` ORDER BY name ASC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewDB("store.ListVenuesWithWebsite", "failed to query venues", err)
	}
	defer rows.Close()

	var venues []models.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, errs.NewDB("store.ListVenuesWithWebsite", "failed to scan venue row", err)
		}
		venues = append(venues, *v)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.ListVenuesWithWebsite", "row iteration error", err)
	}
	return venues, nil
}

// DistinctVenueAreas returns the distinct area names present on venues,
// alphabetical. The seeder compares this historical set against the loaded
// config to catch an accidentally truncated area file.
func (s *Store) DistinctVenueAreas(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT DISTINCT area FROM venues
	          WHERE area IS NOT NULL AND area != '' ORDER BY area ASC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.NewDB("store.DistinctVenueAreas", "failed to query venue areas", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.NewDB("store.DistinctVenueAreas", "failed to scan area row", err)
		}
		names = append(names, name)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.DistinctVenueAreas", "row iteration error", err)
	}
	return names, nil
}

// UpsertVenueTx inserts or merges one venue inside an open transaction and
// appends the audit row. Merge never shrinks: a NULL incoming field keeps the
// stored value, a non-NULL incoming field wins. Returns the audit action
// taken ("INSERT" or "UPDATE").
func (s *Store) UpsertVenueTx(tx *sql.Tx, v *models.Venue, actor string) (string, error) {
	query := `INSERT INTO venues
	          (id, name, area, address, lat, lng, website, phone, zip_codes,
	           address_components, operating_hours, active)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE
	            name = VALUES(name),
	            area = COALESCE(VALUES(area), area),
	            address = COALESCE(VALUES(address), address),
	            lat = VALUES(lat),
	            lng = VALUES(lng),
	            website = COALESCE(VALUES(website), website),
	            phone = COALESCE(VALUES(phone), phone),
	            zip_codes = COALESCE(VALUES(zip_codes), zip_codes),
	            address_components = COALESCE(VALUES(address_components), address_components),
	            operating_hours = COALESCE(VALUES(operating_hours), operating_hours),
	            active = VALUES(active),
	            updated_at = NOW()`

	result, err := tx.Exec(query,
		v.ID, v.Name, v.Area, v.Address, v.Lat, v.Lng, v.Website, v.Phone,
		v.ZipCodes, v.AddressComponents, v.OperatingHours, v.Active,
	)
	if err != nil {
		return "", errs.NewDB("store.UpsertVenueTx", "failed to upsert venue", err)
	}

	// MySQL reports 1 affected row for a fresh insert, 2 for an update.
	action := "UPDATE"
	if affected, err := result.RowsAffected(); err == nil && affected == 1 {
		action = "INSERT"
	}

	if err := appendAudit(tx, "venues", v.ID, action, actor, v); err != nil {
		return "", err
	}
	return action, nil
}

// UpsertVenues merges a batch of venues in one transaction, one audit row
// per venue. Returns how many were newly inserted.
func (s *Store) UpsertVenues(ctx context.Context, venues []models.Venue, actor string) (int, error) {
	if len(venues) == 0 {
		return 0, nil
	}

	created := 0
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range venues {
			action, err := s.UpsertVenueTx(tx, &venues[i], actor)
			if err != nil {
				return err
			}
			if action == "INSERT" {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// VenueStats aggregates venue counts for the seed inventory summary.
func (s *Store) VenueStats(ctx context.Context) (*models.VenueStats, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	stats := &models.VenueStats{ByArea: make(map[string]int)}

	totalsQuery := `SELECT COUNT(*),
	                COUNT(CASE WHEN active = 1 THEN 1 END),
	                COUNT(CASE WHEN active = 1 AND website IS NOT NULL AND website != '' THEN 1 END),
	                COUNT(CASE WHEN area IS NULL OR area = '' THEN 1 END)
	                FROM venues`
	err := s.conn.QueryRowContext(ctx, totalsQuery).Scan(
		&stats.Total, &stats.Active, &stats.WithSite, &stats.Unassigned,
	)
	if err != nil {
		return nil, errs.NewDB("store.VenueStats", "failed to aggregate venue totals", err)
	}

	excludedQuery := `SELECT COUNT(*) FROM watchlist WHERE status = ?`
	if err := s.conn.QueryRowContext(ctx, excludedQuery, models.WatchlistExcluded).Scan(&stats.Excluded); err != nil {
		return nil, errs.NewDB("store.VenueStats", "failed to count excluded venues", err)
	}

	areaQuery := `SELECT area, COUNT(*) FROM venues
	              WHERE active = 1 AND area IS NOT NULL AND area != ''
	              GROUP BY area`
	rows, err := s.conn.QueryContext(ctx, areaQuery)
	if err != nil {
		return nil, errs.NewDB("store.VenueStats", "failed to aggregate per-area counts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var area string
		var count int
		if err := rows.Scan(&area, &count); err != nil {
			return nil, errs.NewDB("store.VenueStats", "failed to scan area count", err)
		}
		stats.ByArea[area] = count
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.VenueStats", "row iteration error", err)
	}

	return stats, nil
}

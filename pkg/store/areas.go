package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/geography"
)

// SyncAreas mirrors the loaded area geometry into the areas table so reports
// can join on it. The config file stays authoritative: the mirror is replaced
// wholesale, rows for areas no longer configured are removed.
func (s *Store) SyncAreas(ctx context.Context, set *geography.AreaSet) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, a := range set.Areas {
			zips, err := json.Marshal(a.ZipCodes)
			if err != nil {
				return errs.NewDB("store.SyncAreas", "failed to marshal zip codes", err)
			}
			query := `INSERT INTO areas
			          (name, display_name, south, west, north, east, center_lat, center_lng, radius_m, zip_codes)
			          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			          ON DUPLICATE KEY UPDATE
			            display_name = VALUES(display_name),
			            south = VALUES(south), west = VALUES(west),
			            north = VALUES(north), east = VALUES(east),
			            center_lat = VALUES(center_lat), center_lng = VALUES(center_lng),
			            radius_m = VALUES(radius_m), zip_codes = VALUES(zip_codes),
			            updated_at = NOW()`
			if _, err := tx.Exec(query,
				a.Name, a.DisplayName,
				a.Bounds.South, a.Bounds.West, a.Bounds.North, a.Bounds.East,
				a.Center.Lat, a.Center.Lng, a.RadiusM, string(zips),
			); err != nil {
				return errs.NewDB("store.SyncAreas", "failed to upsert area "+a.Name, err)
			}
		}

		if len(set.Areas) == 0 {
			return nil
		}
		placeholders := make([]string, len(set.Areas))
		args := make([]any, len(set.Areas))
		for i, a := range set.Areas {
			placeholders[i] = "?"
			args[i] = a.Name
		}
		del := `DELETE FROM areas WHERE name NOT IN (` + strings.Join(placeholders, ",") + `)`
		if _, err := tx.Exec(del, args...); err != nil {
			return errs.NewDB("store.SyncAreas", "failed to remove stale areas", err)
		}
		return nil
	})
}

// ListAreaNames returns the mirrored area names in alphabetical order.
func (s *Store) ListAreaNames(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `SELECT name FROM areas ORDER BY name ASC`)
	if err != nil {
		return nil, errs.NewDB("store.ListAreaNames", "failed to query areas", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.NewDB("store.ListAreaNames", "failed to scan area row", err)
		}
		names = append(names, name)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.ListAreaNames", "row iteration error", err)
	}
	return names, nil
}

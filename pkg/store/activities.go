package store

import (
	"context"
	"database/sql"

	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// ListActivities returns all activity categories, current and deprecated.
func (s *Store) ListActivities(ctx context.Context) ([]models.Activity, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT id, name, deprecated, created_at FROM activities ORDER BY name ASC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.NewDB("store.ListActivities", "failed to query activities", err)
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.Name, &a.Deprecated, &a.CreatedAt); err != nil {
			return nil, errs.NewDB("store.ListActivities", "failed to scan activity row", err)
		}
		activities = append(activities, a)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.ListActivities", "row iteration error", err)
	}
	return activities, nil
}

// DeprecatedActivities returns the set of deprecated category names. The
// materializer skips gold entries whose type is in this set.
func (s *Store) DeprecatedActivities(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `SELECT name FROM activities WHERE deprecated = 1`)
	if err != nil {
		return nil, errs.NewDB("store.DeprecatedActivities", "failed to query activities", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.NewDB("store.DeprecatedActivities", "failed to scan activity row", err)
		}
		set[name] = true
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.DeprecatedActivities", "row iteration error", err)
	}
	return set, nil
}

// UpsertActivityTx adds an activity category (or revives a deprecated one)
// inside an open transaction, audited.
func (s *Store) UpsertActivityTx(tx *sql.Tx, name, actor string) error {
	query := `INSERT INTO activities (name, deprecated) VALUES (?, 0)
	          ON DUPLICATE KEY UPDATE deprecated = 0`
	if _, err := tx.Exec(query, name); err != nil {
		return errs.NewDB("store.UpsertActivityTx", "failed to upsert activity", err)
	}
	diff := map[string]any{"name": name, "deprecated": false}
	return appendAudit(tx, "activities", name, "INSERT", actor, diff)
}

// SetActivityDeprecatedTx marks a category deprecated inside an open
// transaction, audited. Existing spots keep their type; the materializer
// just stops producing new ones.
func (s *Store) SetActivityDeprecatedTx(tx *sql.Tx, name, actor string) error {
	query := `UPDATE activities SET deprecated = 1 WHERE name = ?`
	if _, err := tx.Exec(query, name); err != nil {
		return errs.NewDB("store.SetActivityDeprecatedTx", "failed to deprecate activity", err)
	}
	diff := map[string]any{"name": name, "deprecated": true}
	return appendAudit(tx, "activities", name, "UPDATE", actor, diff)
}

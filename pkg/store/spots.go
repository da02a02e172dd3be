package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/internal/validation"
	errs "venue-intel-pipeline/pkg/errors"
)

// spotColumns is the shared select list; keep in sync with scanSpot.
const spotColumns = `id, venue_id, title, description, type, lat, lng, area,
	source, status, manual_override, pending_edit, pending_delete,
	photo_url, source_url, promotion_time, confidence,
	edited_at, created_at, updated_at`

// scanSpot scans one spot row, converting nullable columns to pointers.
func scanSpot(sc scanner) (*models.Spot, error) {
	var sp models.Spot
	var venueID, area, pendingEdit, photoURL, sourceURL, promotionTime sql.NullString
	var editedAt, updatedAt sql.NullTime

	err := sc.Scan(
		&sp.ID, &venueID, &sp.Title, &sp.Description, &sp.Type, &sp.Lat, &sp.Lng,
		&area, &sp.Source, &sp.Status, &sp.ManualOverride, &pendingEdit,
		&sp.PendingDelete, &photoURL, &sourceURL, &promotionTime, &sp.Confidence,
		&editedAt, &sp.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if venueID.Valid {
		sp.VenueID = &venueID.String
	}
	if area.Valid {
		sp.Area = &area.String
	}
	if pendingEdit.Valid {
		sp.PendingEdit = &pendingEdit.String
	}
	if photoURL.Valid {
		sp.PhotoURL = &photoURL.String
	}
	if sourceURL.Valid {
		sp.SourceURL = &sourceURL.String
	}
	if promotionTime.Valid {
		sp.PromotionTime = &promotionTime.String
	}
	if editedAt.Valid {
		t := editedAt.Time
		sp.EditedAt = &t
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		sp.UpdatedAt = &t
	}

	return &sp, nil
}

// GetSpot fetches one spot by id. Returns nil, nil when absent.
func (s *Store) GetSpot(ctx context.Context, id int64) (*models.Spot, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + spotColumns + ` FROM spots WHERE id = ?`
	sp, err := scanSpot(s.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("store.GetSpot", "failed to get spot", err)
	}
	return sp, nil
}

// GetSpotByVenueAndType fetches the automated spot for a venue and activity
// type, the natural key the materializer upserts on. Returns nil, nil when
// absent.
func (s *Store) GetSpotByVenueAndType(ctx context.Context, venueID, typ string) (*models.Spot, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	sp, err := scanSpot(s.stmts["getSpotByVenueType"].QueryRowContext(ctx, venueID, typ))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("store.GetSpotByVenueAndType", "failed to get spot", err)
	}
	return sp, nil
}

// ListSpotsByStatus returns spots in one status, newest first.
func (s *Store) ListSpotsByStatus(ctx context.Context, status string) ([]models.Spot, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + spotColumns + ` FROM spots WHERE status = ? ORDER BY created_at DESC, id DESC`
	rows, err := s.conn.QueryContext(ctx, query, status)
	if err != nil {
		return nil, errs.NewDB("store.ListSpotsByStatus", "failed to query spots", err)
	}
	defer rows.Close()
	return collectSpots(rows, "store.ListSpotsByStatus")
}

// ListApprovedSpots returns the serving set ordered by area then title, the
// order the spots report renders in.
func (s *Store) ListApprovedSpots(ctx context.Context) ([]models.Spot, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + spotColumns + ` FROM spots WHERE status = ?
	          ORDER BY area ASC, title ASC`
	rows, err := s.conn.QueryContext(ctx, query, models.SpotApproved)
	if err != nil {
		return nil, errs.NewDB("store.ListApprovedSpots", "failed to query spots", err)
	}
	defer rows.Close()
	return collectSpots(rows, "store.ListApprovedSpots")
}

func collectSpots(rows *sql.Rows, op string) ([]models.Spot, error) {
	var spots []models.Spot
	for rows.Next() {
		sp, err := scanSpot(rows)
		if err != nil {
			return nil, errs.NewDB(op, "failed to scan spot row", err)
		}
		spots = append(spots, *sp)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB(op, "row iteration error", err)
	}
	return spots, nil
}

// ListSpotsByVenue returns every spot tied to a venue, any source or status.
func (s *Store) ListSpotsByVenue(ctx context.Context, venueID string) ([]models.Spot, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + spotColumns + ` FROM spots WHERE venue_id = ? ORDER BY id ASC`
	rows, err := s.conn.QueryContext(ctx, query, venueID)
	if err != nil {
		return nil, errs.NewDB("store.ListSpotsByVenue", "failed to query spots", err)
	}
	defer rows.Close()
	return collectSpots(rows, "store.ListSpotsByVenue")
}

// DeleteSpotsForVenue removes every spot tied to a venue, one audited delete
// per row in a single transaction. The materializer uses this to enforce
// watchlist exclusion. Returns the number of spots removed.
func (s *Store) DeleteSpotsForVenue(ctx context.Context, venueID, actor string) (int64, error) {
	spots, err := s.ListSpotsByVenue(ctx, venueID)
	if err != nil {
		return 0, err
	}
	if len(spots) == 0 {
		return 0, nil
	}
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range spots {
			if err := s.DeleteSpotTx(tx, &spots[i], actor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(spots)), nil
}

// SpotCounts returns per-status spot counts for the status command.
func (s *Store) SpotCounts(ctx context.Context) (map[string]int, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT status, COUNT(*) FROM spots GROUP BY status`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.NewDB("store.SpotCounts", "failed to count spots", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errs.NewDB("store.SpotCounts", "failed to scan count row", err)
		}
		counts[status] = n
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.SpotCounts", "row iteration error", err)
	}
	return counts, nil
}

// InsertSpot creates a spot and its audit row in one transaction, returning
// the assigned id.
func (s *Store) InsertSpot(ctx context.Context, sp *models.Spot, actor string) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.InsertSpotTx(tx, sp, actor)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertSpotTx creates a spot inside an open transaction and appends the
// audit row.
func (s *Store) InsertSpotTx(tx *sql.Tx, sp *models.Spot, actor string) (int64, error) {
	query := `INSERT INTO spots
	          (venue_id, title, description, type, lat, lng, area, source, status,
	           manual_override, pending_delete, photo_url, source_url, promotion_time, confidence)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := tx.Exec(query,
		sp.VenueID, sp.Title, sp.Description, sp.Type, sp.Lat, sp.Lng, sp.Area,
		sp.Source, sp.Status, sp.ManualOverride, sp.PendingDelete,
		sp.PhotoURL, sp.SourceURL, sp.PromotionTime, sp.Confidence,
	)
	if err != nil {
		return 0, errs.NewDB("store.InsertSpotTx", "failed to insert spot", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errs.NewDB("store.InsertSpotTx", "failed to get spot id", err)
	}
	sp.ID = id

	if err := appendAudit(tx, "spots", fmt.Sprint(id), "INSERT", actor, sp); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateSpotContent rewrites the materializer-owned fields of an existing
// spot. Callers resolve manual-override and pending-edit blocking before
// calling; this persists exactly what it is given.
func (s *Store) UpdateSpotContent(ctx context.Context, sp *models.Spot, actor string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE spots SET
		          title = ?, description = ?, type = ?, lat = ?, lng = ?, area = ?,
		          status = ?, photo_url = ?, source_url = ?, promotion_time = ?,
		          confidence = ?, updated_at = NOW()
		          WHERE id = ?`
		if _, err := tx.Exec(query,
			sp.Title, sp.Description, sp.Type, sp.Lat, sp.Lng, sp.Area,
			sp.Status, sp.PhotoURL, sp.SourceURL, sp.PromotionTime,
			sp.Confidence, sp.ID,
		); err != nil {
			return errs.NewDB("store.UpdateSpotContent", "failed to update spot", err)
		}
		return appendAudit(tx, "spots", fmt.Sprint(sp.ID), "UPDATE", actor, sp)
	})
}

// UpdateSpotStatus flips a spot's status, audited.
func (s *Store) UpdateSpotStatus(ctx context.Context, id int64, status, actor string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.UpdateSpotStatusTx(tx, id, status, actor)
	})
}

// UpdateSpotStatusTx flips status inside an open transaction.
func (s *Store) UpdateSpotStatusTx(tx *sql.Tx, id int64, status, actor string) error {
	query := `UPDATE spots SET status = ?, edited_at = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := tx.Exec(query, status, id); err != nil {
		return errs.NewDB("store.UpdateSpotStatusTx", "failed to update spot status", err)
	}
	diff := map[string]string{"status": status}
	return appendAudit(tx, "spots", fmt.Sprint(id), "UPDATE", actor, diff)
}

// SetPendingEdit queues an edit payload for admin review, audited.
func (s *Store) SetPendingEdit(ctx context.Context, id int64, edit *models.SpotEdit, actor string) error {
	payload, err := json.Marshal(edit)
	if err != nil {
		return errs.NewDB("store.SetPendingEdit", "failed to marshal edit payload", err)
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE spots SET pending_edit = ?, updated_at = NOW() WHERE id = ?`
		if _, err := tx.Exec(query, string(payload), id); err != nil {
			return errs.NewDB("store.SetPendingEdit", "failed to set pending edit", err)
		}
		diff := map[string]any{"pending_edit": edit}
		return appendAudit(tx, "spots", fmt.Sprint(id), "UPDATE", actor, diff)
	})
}

// ApplyPendingEditTx applies the queued edit to the spot inside an open
// transaction: edited fields land, manual_override is set so the pipeline
// stops rewriting them, the queue slot clears. Returns the updated spot.
func (s *Store) ApplyPendingEditTx(tx *sql.Tx, sp *models.Spot, actor string) (*models.Spot, error) {
	edit := sp.Edit()
	if edit == nil {
		return nil, errs.NewIntegrity("store.ApplyPendingEditTx",
			fmt.Sprintf("spot %d has no pending edit", sp.ID), nil)
	}

	title, description, typ := sp.Title, sp.Description, sp.Type
	if edit.Title != nil {
		title = *edit.Title
	}
	if edit.Description != nil {
		description = *edit.Description
	}
	if edit.Type != nil {
		typ = *edit.Type
	}
	if err := validation.SpotContent(title, description, typ); err != nil {
		return nil, errs.NewIntegrity("store.ApplyPendingEditTx",
			fmt.Sprintf("pending edit for spot %d rejected: %v", sp.ID, err), nil)
	}

	query := `UPDATE spots SET
	          title = ?, description = ?, type = ?, manual_override = 1,
	          pending_edit = NULL, edited_at = NOW(), updated_at = NOW()
	          WHERE id = ?`
	if _, err := tx.Exec(query, title, description, typ, sp.ID); err != nil {
		return nil, errs.NewDB("store.ApplyPendingEditTx", "failed to apply pending edit", err)
	}

	if err := appendAudit(tx, "spots", fmt.Sprint(sp.ID), "UPDATE", actor, edit); err != nil {
		return nil, err
	}

	out := *sp
	out.Title, out.Description, out.Type = title, description, typ
	out.ManualOverride = true
	out.PendingEdit = nil
	return &out, nil
}

// ClearPendingEditTx drops a queued edit without applying it.
func (s *Store) ClearPendingEditTx(tx *sql.Tx, id int64, actor string) error {
	query := `UPDATE spots SET pending_edit = NULL, updated_at = NOW() WHERE id = ?`
	if _, err := tx.Exec(query, id); err != nil {
		return errs.NewDB("store.ClearPendingEditTx", "failed to clear pending edit", err)
	}
	diff := map[string]any{"pending_edit": nil, "decision": "rejected"}
	return appendAudit(tx, "spots", fmt.Sprint(id), "UPDATE", actor, diff)
}

// SetPendingDelete marks or unmarks a spot for delete review, audited.
func (s *Store) SetPendingDelete(ctx context.Context, id int64, pending bool, actor string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.SetPendingDeleteTx(tx, id, pending, actor)
	})
}

// SetPendingDeleteTx is the in-transaction variant.
func (s *Store) SetPendingDeleteTx(tx *sql.Tx, id int64, pending bool, actor string) error {
	query := `UPDATE spots SET pending_delete = ?, updated_at = NOW() WHERE id = ?`
	if _, err := tx.Exec(query, pending, id); err != nil {
		return errs.NewDB("store.SetPendingDeleteTx", "failed to set pending delete", err)
	}
	diff := map[string]bool{"pending_delete": pending}
	return appendAudit(tx, "spots", fmt.Sprint(id), "UPDATE", actor, diff)
}

// DeleteSpotTx removes a spot inside an open transaction, auditing the full
// row as the diff so the delete is reconstructable.
func (s *Store) DeleteSpotTx(tx *sql.Tx, sp *models.Spot, actor string) error {
	if _, err := tx.Exec(`DELETE FROM spots WHERE id = ?`, sp.ID); err != nil {
		return errs.NewDB("store.DeleteSpotTx", "failed to delete spot", err)
	}
	return appendAudit(tx, "spots", fmt.Sprint(sp.ID), "DELETE", actor, sp)
}

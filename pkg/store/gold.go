package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// UpsertGoldRecord mirrors one extraction result into the store. The gold
// file tree stays authoritative; the mirror exists so status and reporting
// can query without walking the tree. Pipeline-internal, so not audited.
func (s *Store) UpsertGoldRecord(ctx context.Context, rec *models.GoldRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errs.NewDB("store.UpsertGoldRecord", "failed to marshal gold payload", err)
	}

	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	query := `INSERT INTO gold_records
	          (venue_id, venue_name, extraction_method, source_hash, extracted_at,
	           source_modified_at, found, needs_llm, confidence, payload)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE
	            venue_name = VALUES(venue_name),
	            extraction_method = VALUES(extraction_method),
	            source_hash = VALUES(source_hash),
	            extracted_at = VALUES(extracted_at),
	            source_modified_at = VALUES(source_modified_at),
	            found = VALUES(found),
	            needs_llm = VALUES(needs_llm),
	            confidence = VALUES(confidence),
	            payload = VALUES(payload),
	            updated_at = NOW()`
	if _, err := s.conn.ExecContext(ctx, query,
		rec.VenueID, rec.VenueName, rec.ExtractionMethod, rec.SourceHash,
		rec.ExtractedAt, rec.SourceModifiedAt, rec.Found(), rec.NeedsLLM,
		rec.Confidence, string(payload),
	); err != nil {
		return errs.NewDB("store.UpsertGoldRecord", "failed to upsert gold record", err)
	}
	return nil
}

// GetGoldRecord returns the mirrored record for a venue, nil when absent.
func (s *Store) GetGoldRecord(ctx context.Context, venueID string) (*models.GoldRecord, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	var payload string
	query := `SELECT payload FROM gold_records WHERE venue_id = ?`
	err := s.conn.QueryRowContext(ctx, query, venueID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("store.GetGoldRecord", "failed to get gold record", err)
	}

	var rec models.GoldRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, errs.NewDB("store.GetGoldRecord", "gold payload is not valid JSON", err)
	}
	return &rec, nil
}

// GoldStats returns mirrored-record counts for the daily report: total
// records, records with at least one offer, records flagged for review.
func (s *Store) GoldStats(ctx context.Context) (total, found, needsLLM int, err error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT COUNT(*),
	          COUNT(CASE WHEN found = 1 THEN 1 END),
	          COUNT(CASE WHEN needs_llm = 1 THEN 1 END)
	          FROM gold_records`
	if err = s.conn.QueryRowContext(ctx, query).Scan(&total, &found, &needsLLM); err != nil {
		return 0, 0, 0, errs.NewDB("store.GoldStats", "failed to aggregate gold counts", err)
	}
	return total, found, needsLLM, nil
}

package store

import (
	"context"
	"database/sql"

	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// GetReview returns the persisted decision for one borderline offer, keyed
// by venue, activity type and normalized period. Nil when never reviewed.
func (s *Store) GetReview(ctx context.Context, venueID, typ, period string) (*models.ConfidenceReview, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	var r models.ConfidenceReview
	var decision, reasoning sql.NullString
	var appliedAt sql.NullTime

	query := `SELECT venue_id, type, period, heuristic_score, llm_decision, llm_reasoning, applied_at
	          FROM reviews WHERE venue_id = ? AND type = ? AND period = ?`
	err := s.conn.QueryRowContext(ctx, query, venueID, typ, period).Scan(
		&r.VenueID, &r.Type, &r.Period, &r.HeuristicScore, &decision, &reasoning, &appliedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("store.GetReview", "failed to get review", err)
	}

	if decision.Valid {
		r.LLMDecision = &decision.String
	}
	if reasoning.Valid {
		r.LLMReasoning = &reasoning.String
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		r.AppliedAt = &t
	}
	return &r, nil
}

// SaveReview upserts one review decision so the same offer is never asked
// about twice.
func (s *Store) SaveReview(ctx context.Context, r *models.ConfidenceReview) error {
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	query := `INSERT INTO reviews
	          (venue_id, type, period, heuristic_score, llm_decision, llm_reasoning, applied_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE
	            heuristic_score = VALUES(heuristic_score),
	            llm_decision = VALUES(llm_decision),
	            llm_reasoning = VALUES(llm_reasoning),
	            applied_at = VALUES(applied_at)`
	if _, err := s.conn.ExecContext(ctx, query,
		r.VenueID, r.Type, r.Period, r.HeuristicScore,
		r.LLMDecision, r.LLMReasoning, r.AppliedAt,
	); err != nil {
		return errs.NewDB("store.SaveReview", "failed to save review", err)
	}
	return nil
}

// ReviewStats counts reviews by decision for the daily report.
func (s *Store) ReviewStats(ctx context.Context) (map[string]int, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT COALESCE(llm_decision, ''), COUNT(*) FROM reviews GROUP BY llm_decision`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.NewDB("store.ReviewStats", "failed to count reviews", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var decision string
		var n int
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, errs.NewDB("store.ReviewStats", "failed to scan review count", err)
		}
		counts[decision] = n
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.ReviewStats", "row iteration error", err)
	}
	return counts, nil
}

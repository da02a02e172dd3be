package store

import (
	"context"
	"database/sql"

	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// GetStreak returns the change streak for a venue and activity type, nil
// when none is recorded yet.
func (s *Store) GetStreak(ctx context.Context, venueID, typ string) (*models.Streak, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	var st models.Streak
	err := s.stmts["getStreak"].QueryRowContext(ctx, venueID, typ).Scan(
		&st.VenueID, &st.Type, &st.Name, &st.LastDate, &st.Streak, &st.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("store.GetStreak", "failed to get streak", err)
	}
	return &st, nil
}

// UpsertStreak persists a streak row computed by the materializer.
// Pipeline-internal, so not audited.
func (s *Store) UpsertStreak(ctx context.Context, st *models.Streak) error {
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	query := `INSERT INTO streaks (venue_id, type, name, last_date, streak)
	          VALUES (?, ?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE
	            name = VALUES(name),
	            last_date = VALUES(last_date),
	            streak = VALUES(streak),
	            updated_at = NOW()`
	if _, err := s.conn.ExecContext(ctx, query, st.VenueID, st.Type, st.Name, st.LastDate, st.Streak); err != nil {
		return errs.NewDB("store.UpsertStreak", "failed to upsert streak", err)
	}
	return nil
}

// TopStreaks returns the longest active streaks for the daily report.
func (s *Store) TopStreaks(ctx context.Context, limit int) ([]models.Streak, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT venue_id, type, name, last_date, streak, updated_at
	          FROM streaks WHERE streak > 0
	          ORDER BY streak DESC, venue_id ASC LIMIT ?`
	rows, err := s.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errs.NewDB("store.TopStreaks", "failed to query streaks", err)
	}
	defer rows.Close()

	var streaks []models.Streak
	for rows.Next() {
		var st models.Streak
		if err := rows.Scan(&st.VenueID, &st.Type, &st.Name, &st.LastDate, &st.Streak, &st.UpdatedAt); err != nil {
			return nil, errs.NewDB("store.TopStreaks", "failed to scan streak row", err)
		}
		streaks = append(streaks, st)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.TopStreaks", "row iteration error", err)
	}
	return streaks, nil
}

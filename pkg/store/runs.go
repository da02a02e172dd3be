package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// CreateRun records a new orchestrator invocation in running state.
func (s *Store) CreateRun(ctx context.Context, run *models.PipelineRun) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return errs.NewDB("store.CreateRun", "failed to marshal steps", err)
	}

	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	query := `INSERT INTO pipeline_runs (id, started_at, status, run_date, steps, area_filter)
	          VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.conn.ExecContext(ctx, query,
		run.ID, run.StartedAt, run.Status, run.RunDate, string(steps), run.AreaFilter,
	); err != nil {
		return errs.NewDB("store.CreateRun", "failed to insert run", err)
	}
	return nil
}

// UpdateRunSteps rewrites the step map after a step transition.
func (s *Store) UpdateRunSteps(ctx context.Context, id string, steps map[string]models.StepRecord) error {
	payload, err := json.Marshal(steps)
	if err != nil {
		return errs.NewDB("store.UpdateRunSteps", "failed to marshal steps", err)
	}

	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE pipeline_runs SET steps = ? WHERE id = ?`
	if _, err := s.conn.ExecContext(ctx, query, string(payload), id); err != nil {
		return errs.NewDB("store.UpdateRunSteps", "failed to update run steps", err)
	}
	return nil
}

// FinishRun closes a run with its terminal status.
func (s *Store) FinishRun(ctx context.Context, id, status string, finishedAt time.Time) error {
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE pipeline_runs SET status = ?, finished_at = ? WHERE id = ?`
	if _, err := s.conn.ExecContext(ctx, query, status, finishedAt, id); err != nil {
		return errs.NewDB("store.FinishRun", "failed to finish run", err)
	}
	return nil
}

// scanRun scans one pipeline_runs row including the steps JSON.
func scanRun(sc scanner) (*models.PipelineRun, error) {
	var run models.PipelineRun
	var finishedAt sql.NullTime
	var areaFilter sql.NullString
	var steps string

	err := sc.Scan(&run.ID, &run.StartedAt, &finishedAt, &run.Status, &run.RunDate, &steps, &areaFilter)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if areaFilter.Valid {
		run.AreaFilter = &areaFilter.String
	}
	if err := json.Unmarshal([]byte(steps), &run.Steps); err != nil {
		return nil, err
	}
	return &run, nil
}

const runColumns = `id, started_at, finished_at, status, run_date, steps, area_filter`

// GetRun fetches one run by id, nil when absent.
func (s *Store) GetRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = ?`
	run, err := scanRun(s.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("store.GetRun", "failed to get run", err)
	}
	return run, nil
}

// LatestRun returns the most recently started run, nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*models.PipelineRun, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY started_at DESC, id DESC LIMIT 1`
	run, err := scanRun(s.conn.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("store.LatestRun", "failed to get latest run", err)
	}
	return run, nil
}

// ActiveRun returns the run currently in running state, nil when idle. At
// most one run may be active; a second concurrent start must refuse.
func (s *Store) ActiveRun(ctx context.Context) (*models.PipelineRun, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE status = ?
	          ORDER BY started_at DESC LIMIT 1`
	run, err := scanRun(s.conn.QueryRowContext(ctx, query, models.RunRunning))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("store.ActiveRun", "failed to get active run", err)
	}
	return run, nil
}

// RecoverStaleRuns flips runs stuck in running state past the threshold to
// failed_stale, returning how many were recovered. Called at startup before
// a new run is admitted.
func (s *Store) RecoverStaleRuns(ctx context.Context, threshold time.Duration) (int, error) {
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	cutoff := time.Now().Add(-threshold)
	query := `UPDATE pipeline_runs SET status = ?, finished_at = NOW()
	          WHERE status = ? AND started_at < ?`
	result, err := s.conn.ExecContext(ctx, query, models.RunFailedStale, models.RunRunning, cutoff)
	if err != nil {
		return 0, errs.NewDB("store.RecoverStaleRuns", "failed to recover stale runs", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errs.NewDB("store.RecoverStaleRuns", "failed to count recovered runs", err)
	}
	return int(n), nil
}

// ListRecentRuns returns the newest runs, for the report's run history.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY started_at DESC, id DESC LIMIT ?`
	rows, err := s.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errs.NewDB("store.ListRecentRuns", "failed to query runs", err)
	}
	defer rows.Close()

	var runs []models.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errs.NewDB("store.ListRecentRuns", "failed to scan run row", err)
		}
		runs = append(runs, *run)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.ListRecentRuns", "row iteration error", err)
	}
	return runs, nil
}

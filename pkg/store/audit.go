package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"venue-intel-pipeline/internal/models"
	errs "venue-intel-pipeline/pkg/errors"
)

// appendAudit writes one audit row inside an open transaction. The diff
// payload is marshalled to JSON; mutations must pass one so audit rows are
// never empty.
func appendAudit(tx *sql.Tx, table, rowKey, action, actor string, diff any) error {
	var diffJSON any
	if diff != nil {
		b, err := json.Marshal(diff)
		if err != nil {
			return errs.NewDB("store.appendAudit", "failed to marshal audit diff", err)
		}
		diffJSON = string(b)
	}

	query := `INSERT INTO audit_logs (table_name, row_key, action, actor, diff, at)
	          VALUES (?, ?, ?, ?, ?, NOW())`
	if _, err := tx.Exec(query, table, rowKey, action, actor, diffJSON); err != nil {
		return errs.NewDB("store.appendAudit", "failed to insert audit row", err)
	}
	return nil
}

// ListAuditsSince returns audit rows at or after the cutoff, newest first.
// Backs the serve mode's audit window endpoint.
func (s *Store) ListAuditsSince(ctx context.Context, cutoff time.Time) ([]models.AuditLog, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT id, table_name, row_key, action, actor, diff, at
	          FROM audit_logs WHERE at >= ? ORDER BY at DESC, id DESC`
	rows, err := s.conn.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, errs.NewDB("store.ListAuditsSince", "failed to query audit rows", err)
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		var diff sql.NullString
		if err := rows.Scan(&l.ID, &l.TableName, &l.RowKey, &l.Action, &l.Actor, &diff, &l.At); err != nil {
			return nil, errs.NewDB("store.ListAuditsSince", "failed to scan audit row", err)
		}
		if diff.Valid {
			l.Diff = &diff.String
		}
		logs = append(logs, l)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.ListAuditsSince", "row iteration error", err)
	}
	return logs, nil
}

// ListAuditsForRow returns the audit trail for one row, oldest first.
func (s *Store) ListAuditsForRow(ctx context.Context, table, rowKey string) ([]models.AuditLog, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT id, table_name, row_key, action, actor, diff, at
	          FROM audit_logs WHERE table_name = ? AND row_key = ? ORDER BY id ASC`
	rows, err := s.conn.QueryContext(ctx, query, table, rowKey)
	if err != nil {
		return nil, errs.NewDB("store.ListAuditsForRow", "failed to query audit rows", err)
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		var diff sql.NullString
		if err := rows.Scan(&l.ID, &l.TableName, &l.RowKey, &l.Action, &l.Actor, &diff, &l.At); err != nil {
			return nil, errs.NewDB("store.ListAuditsForRow", "failed to scan audit row", err)
		}
		if diff.Valid {
			l.Diff = &diff.String
		}
		logs = append(logs, l)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.NewDB("store.ListAuditsForRow", "row iteration error", err)
	}
	return logs, nil
}

package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"venue-intel-pipeline/pkg/store"
)

// SQLEventStore persists events in an append-only SQL table with ordered
// ids. The journal owns its table and ensures it at construction.
// NOTE: JSON may be emulated as LONGTEXT on older MySQL variants.
type SQLEventStore struct {
	db *store.Store
}

func NewSQLEventStore(db *store.Store) *SQLEventStore {
	s := &SQLEventStore{db: db}
	if err := s.ensureTable(); err != nil {
		// Best effort; don't crash app start
		fmt.Printf("[events] ensure table error: %v\n", err)
	}
	return s
}

func (s *SQLEventStore) ensureTable() error {
	qry := `CREATE TABLE IF NOT EXISTS events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		subject VARCHAR(160) NOT NULL,
		type VARCHAR(64) NOT NULL,
		at DATETIME(6) NOT NULL,
		actor VARCHAR(100) NULL,
		data JSON NOT NULL,
		KEY idx_events_subject (subject),
		KEY idx_events_subject_time (subject, id)
	)`
	_, err := s.db.Conn().Exec(qry)
	return err
}

// Append writes events in one transaction, preserving argument order.
func (s *SQLEventStore) Append(ctx context.Context, ev ...Event) error {
	if len(ev) == 0 {
		return nil
	}
	tx, err := s.db.Conn().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (subject, type, at, actor, data) VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range ev {
		payload, err := e.MarshalData()
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}

		at := e.Timestamp()
		if at.IsZero() {
			at = time.Now()
		}

		if _, err := stmt.ExecContext(ctx, e.Subject(), e.Type(), at, e.Actor(), string(payload)); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListBySubject returns a subject's events oldest first.
func (s *SQLEventStore) ListBySubject(ctx context.Context, subject string) ([]StoredEvent, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, subject, type, at, actor, data FROM events WHERE subject = ? ORDER BY id ASC`, subject)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var actor sql.NullString
		var dataStr string
		if err := rows.Scan(&se.Seq, &se.Subject, &se.Type, &se.Ts, &actor, &dataStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if actor.Valid {
			v := actor.String
			se.Actor = &v
		}
		se.Payload = []byte(dataStr)
		out = append(out, se)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// ListSince returns all events at or after the cutoff, oldest first. The
// daily report uses this for the recent-activity window.
func (s *SQLEventStore) ListSince(ctx context.Context, cutoff time.Time) ([]StoredEvent, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, subject, type, at, actor, data FROM events WHERE at >= ? ORDER BY id ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var actor sql.NullString
		var dataStr string
		if err := rows.Scan(&se.Seq, &se.Subject, &se.Type, &se.Ts, &actor, &dataStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if actor.Valid {
			v := actor.String
			se.Actor = &v
		}
		se.Payload = []byte(dataStr)
		out = append(out, se)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Replay rebuilds one spot's decision state from its journal.
func (s *SQLEventStore) Replay(ctx context.Context, spotID int64) (*SpotState, error) {
	events, err := s.ListBySubject(ctx, SpotSubject(spotID))
	if err != nil {
		return nil, err
	}
	return ReplaySpot(spotID, events), nil
}

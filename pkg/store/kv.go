package store

import (
	"context"
	"database/sql"
	"strconv"

	errs "venue-intel-pipeline/pkg/errors"
)

// GetKV reads one config value. The second return reports presence.
func (s *Store) GetKV(ctx context.Context, name string) (string, bool, error) {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()

	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM config WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.NewDB("store.GetKV", "failed to get config value", err)
	}
	return value, true, nil
}

// SetKV writes one config value.
func (s *Store) SetKV(ctx context.Context, name, value string) error {
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	query := `INSERT INTO config (name, value) VALUES (?, ?)
	          ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = NOW()`
	if _, err := s.conn.ExecContext(ctx, query, name, value); err != nil {
		return errs.NewDB("store.SetKV", "failed to set config value", err)
	}
	return nil
}

// AddCounter atomically adds delta to a numeric config value and returns the
// new total. The seeder charges its daily request budget through this.
func (s *Store) AddCounter(ctx context.Context, name string, delta int) (int, error) {
	var total int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO config (name, value) VALUES (?, ?)
		          ON DUPLICATE KEY UPDATE
		            value = CAST(CAST(value AS SIGNED) + ? AS CHAR),
		            updated_at = NOW()`
		if _, err := tx.Exec(query, name, strconv.Itoa(delta), delta); err != nil {
			return errs.NewDB("store.AddCounter", "failed to add to counter", err)
		}

		var value string
		if err := tx.QueryRow(`SELECT value FROM config WHERE name = ?`, name).Scan(&value); err != nil {
			return errs.NewDB("store.AddCounter", "failed to read counter", err)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return errs.NewDB("store.AddCounter", "counter value is not numeric: "+value, err)
		}
		total = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// GetCounter reads a numeric config value, zero when absent.
func (s *Store) GetCounter(ctx context.Context, name string) (int, error) {
	value, ok, err := s.GetKV(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errs.NewDB("store.GetCounter", "counter value is not numeric: "+value, err)
	}
	return n, nil
}

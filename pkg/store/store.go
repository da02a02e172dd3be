// Package store owns the relational side of the pipeline: venues, spots,
// gold mirrors, watchlist, streaks, runs, reviews, activities, audit and the
// key/value config table. All access goes through prepared statements or
// short-deadline contexts; every curation-facing mutation runs inside a
// transaction that also appends an audit row.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/pkg/config"
	errs "venue-intel-pipeline/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
)

type Store struct {
	conn         *sql.DB
	stmts        map[string]*sql.Stmt
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func New(databaseURL string) (*Store, error) {
	conn, err := sql.Open("mysql", databaseURL)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(10 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	s := &Store{
		conn:         conn,
		stmts:        make(map[string]*sql.Stmt),
		readTimeout:  constants.DBReadTimeoutDefault,
		writeTimeout: constants.DBWriteTimeoutDefault,
	}

	if err := s.prepareStatements(); err != nil {
		return nil, errs.NewDB("store.New", "failed to prepare statements", err)
	}

	return s, nil
}

// NewWithConfig creates a store with pool settings from configuration.
func NewWithConfig(databaseURL string, cfg *config.Config) (*Store, error) {
	conn, err := sql.Open("mysql", databaseURL)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(cfg.DBMaxOpenConns)
	conn.SetMaxIdleConns(cfg.DBMaxIdleConns)
	conn.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Minute)
	conn.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Minute)

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	rt := cfg.DBReadTimeout
	if rt == 0 {
		rt = constants.DBReadTimeoutDefault
	}
	wt := cfg.DBWriteTimeout
	if wt == 0 {
		wt = constants.DBWriteTimeoutDefault
	}

	s := &Store{
		conn:         conn,
		stmts:        make(map[string]*sql.Stmt),
		readTimeout:  rt,
		writeTimeout: wt,
	}

	if err := s.prepareStatements(); err != nil {
		return nil, errs.NewDB("store.NewWithConfig", "failed to prepare statements", err)
	}

	return s, nil
}

// prepareStatements prepares the statements the materializer loop hits for
// every gold entry.
func (s *Store) prepareStatements() error {
	statements := map[string]string{
		"getVenue": `SELECT id, name, area, address, lat, lng, website, phone, zip_codes,
		             address_components, operating_hours, active, created_at, updated_at
		             FROM venues WHERE id = ?`,
		"getSpotByVenueType": `SELECT id, venue_id, title, description, type, lat, lng, area,
		                       source, status, manual_override, pending_edit, pending_delete,
		                       photo_url, source_url, promotion_time, confidence,
		                       edited_at, created_at, updated_at
		                       FROM spots WHERE venue_id = ? AND type = ?`,
		"getStreak": `SELECT venue_id, type, name, last_date, streak, updated_at
		              FROM streaks WHERE venue_id = ? AND type = ?`,
	}

	for name, query := range statements {
		stmt, err := s.conn.Prepare(query)
		if err != nil {
			return errs.NewDB("store.prepareStatements", fmt.Sprintf("failed to prepare statement %s", name), err)
		}
		s.stmts[name] = stmt
	}

	return nil
}

// Close closes the connection and prepared statements.
func (s *Store) Close() error {
	for _, stmt := range s.stmts {
		stmt.Close()
	}
	return s.conn.Close()
}

// Ping verifies connectivity, used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withReadTimeout(ctx)
	defer cancel()
	return s.conn.PingContext(ctx)
}

// withReadTimeout creates a context with the standard read deadline.
func (s *Store) withReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.readTimeout)
}

// withWriteTimeout creates a context with the standard write deadline.
func (s *Store) withWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.writeTimeout)
}

// WithTx runs fn inside a transaction with the write deadline applied.
// Rollback on error or panic, commit otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewDB("store.WithTx", "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.NewDB("store.WithTx", "failed to commit transaction", err)
	}
	return nil
}

// Conn exposes the raw handle for the events journal, which manages its own
// deadlines.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

package store

import (
	"context"
	"fmt"

	errs "venue-intel-pipeline/pkg/errors"
)

// schemaDDL creates the eleven store-owned tables. The events journal table
// is ensured by pkg/events, which owns it. JSON columns may be emulated as
// LONGTEXT on older MySQL variants.
var schemaDDL = []struct {
	table string
	ddl   string
}{
	{"venues", `CREATE TABLE IF NOT EXISTS venues (
		id VARCHAR(128) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		area VARCHAR(100) NULL,
		address VARCHAR(500) NULL,
		lat DOUBLE NOT NULL DEFAULT 0,
		lng DOUBLE NOT NULL DEFAULT 0,
		website VARCHAR(500) NULL,
		phone VARCHAR(32) NULL,
		zip_codes VARCHAR(255) NULL,
		address_components JSON NULL,
		operating_hours JSON NULL,
		active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NULL,
		KEY idx_venues_area (area),
		KEY idx_venues_active (active)
	)`},
	{"spots", `CREATE TABLE IF NOT EXISTS spots (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		venue_id VARCHAR(128) NULL,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		type VARCHAR(100) NOT NULL,
		lat DOUBLE NOT NULL DEFAULT 0,
		lng DOUBLE NOT NULL DEFAULT 0,
		area VARCHAR(100) NULL,
		source VARCHAR(32) NOT NULL DEFAULT 'automated',
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		manual_override TINYINT(1) NOT NULL DEFAULT 0,
		pending_edit JSON NULL,
		pending_delete TINYINT(1) NOT NULL DEFAULT 0,
		photo_url VARCHAR(500) NULL,
		source_url VARCHAR(500) NULL,
		promotion_time VARCHAR(255) NULL,
		confidence DOUBLE NOT NULL DEFAULT 0,
		edited_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NULL,
		UNIQUE KEY uq_spots_venue_type (venue_id, type),
		KEY idx_spots_status (status),
		KEY idx_spots_area (area)
	)`},
	{"gold_records", `CREATE TABLE IF NOT EXISTS gold_records (
		venue_id VARCHAR(128) PRIMARY KEY,
		venue_name VARCHAR(255) NOT NULL,
		extraction_method VARCHAR(32) NOT NULL,
		source_hash CHAR(16) NOT NULL,
		extracted_at DATETIME NOT NULL,
		source_modified_at DATETIME NOT NULL,
		found TINYINT(1) NOT NULL DEFAULT 0,
		needs_llm TINYINT(1) NOT NULL DEFAULT 0,
		confidence DOUBLE NOT NULL DEFAULT 0,
		payload JSON NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_gold_source_hash (source_hash)
	)`},
	{"reviews", `CREATE TABLE IF NOT EXISTS reviews (
		venue_id VARCHAR(128) NOT NULL,
		type VARCHAR(100) NOT NULL,
		period VARCHAR(255) NOT NULL,
		heuristic_score DOUBLE NOT NULL DEFAULT 0,
		llm_decision VARCHAR(16) NULL,
		llm_reasoning TEXT NULL,
		applied_at DATETIME NULL,
		PRIMARY KEY (venue_id, type, period)
	)`},
	{"watchlist", `CREATE TABLE IF NOT EXISTS watchlist (
		venue_id VARCHAR(128) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		area VARCHAR(100) NULL,
		status VARCHAR(32) NOT NULL,
		reason VARCHAR(500) NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_watchlist_status (status)
	)`},
	{"areas", `CREATE TABLE IF NOT EXISTS areas (
		name VARCHAR(100) PRIMARY KEY,
		display_name VARCHAR(100) NOT NULL,
		south DOUBLE NOT NULL,
		west DOUBLE NOT NULL,
		north DOUBLE NOT NULL,
		east DOUBLE NOT NULL,
		center_lat DOUBLE NOT NULL,
		center_lng DOUBLE NOT NULL,
		radius_m INT NOT NULL,
		zip_codes JSON NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`},
	{"streaks", `CREATE TABLE IF NOT EXISTS streaks (
		venue_id VARCHAR(128) NOT NULL,
		type VARCHAR(100) NOT NULL,
		name VARCHAR(255) NOT NULL,
		last_date CHAR(8) NOT NULL,
		streak INT NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (venue_id, type)
	)`},
	{"pipeline_runs", `CREATE TABLE IF NOT EXISTS pipeline_runs (
		id VARCHAR(36) PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NULL,
		status VARCHAR(32) NOT NULL,
		run_date CHAR(8) NOT NULL,
		steps JSON NOT NULL,
		area_filter VARCHAR(100) NULL,
		KEY idx_runs_status (status),
		KEY idx_runs_date (run_date)
	)`},
	{"activities", `CREATE TABLE IF NOT EXISTS activities (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		deprecated TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_activities_name (name)
	)`},
	{"audit_logs", `CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		table_name VARCHAR(64) NOT NULL,
		row_key VARCHAR(160) NOT NULL,
		action VARCHAR(16) NOT NULL,
		actor VARCHAR(100) NOT NULL,
		diff JSON NULL,
		at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_audit_row (table_name, row_key),
		KEY idx_audit_at (at)
	)`},
	{"config", `CREATE TABLE IF NOT EXISTS config (
		name VARCHAR(128) PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`},
}

// EnsureSchema creates any missing tables. Safe to call on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, t := range schemaDDL {
		ctx2, cancel := s.withWriteTimeout(ctx)
		_, err := s.conn.ExecContext(ctx2, t.ddl)
		cancel()
		if err != nil {
			return errs.NewDB("store.EnsureSchema", fmt.Sprintf("failed to create table %s", t.table), err)
		}
	}
	return nil
}

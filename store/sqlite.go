// Package store implements the persistent on-disk store for restricted
// metrics named in §6 "Persisted state" (c): an on-disk table per
// configuration, appended at flush, TTL-swept by wall clock.
package store

import (
	"crypto/sha1"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Row is one restricted-metric bucket persisted at flush time.
type Row struct {
	DimensionHash uint64
	BucketStartNs int64
	BucketEndNs   int64
	Value         float64
	WallClockSec  int64
}

// RestrictedStore is the outbound persistence collaborator for restricted
// metrics. Writes happen only at dump or TTL enforcement, never per-event
// (§5 "Suspension points").
type RestrictedStore interface {
	EnsureTable(configKey string, metricID int64) error
	AppendRows(configKey string, metricID int64, rows []Row) error
	SweepExpired(configKey string, metricID int64, nowWallSec int64, ttlSec int64) error
	// DropConfig removes every table belonging to configKey, backing the
	// install/remove-leaves-no-state invariant (§8).
	DropConfig(configKey string) error
	Close() error
}

// SQLite is the default RestrictedStore, backed by modernc.org/sqlite (a
// pure-Go driver, avoiding a cgo dependency for the agent binary).
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func tableName(configKey string, metricID int64) string {
	h := sha1.Sum([]byte(configKey))
	return fmt.Sprintf("restricted_%x_%d", h[:8], metricID)
}

func (s *SQLite) EnsureTable(configKey string, metricID int64) error {
	tbl := tableName(configKey, metricID)
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		dimension_hash INTEGER NOT NULL,
		bucket_start_ns INTEGER NOT NULL,
		bucket_end_ns INTEGER NOT NULL,
		value REAL NOT NULL,
		wall_clock_sec INTEGER NOT NULL
	)`, tbl)
	_, err := s.db.Exec(stmt)
	return err
}

func (s *SQLite) AppendRows(configKey string, metricID int64, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	tbl := tableName(configKey, metricID)
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT INTO %s (dimension_hash, bucket_start_ns, bucket_end_ns, value, wall_clock_sec) VALUES (?, ?, ?, ?, ?)`, tbl))
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(int64(r.DimensionHash), r.BucketStartNs, r.BucketEndNs, r.Value, r.WallClockSec); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SweepExpired deletes rows older than ttlSec relative to nowWallSec (§6
// "restricted-metric rows: ... TTL-swept by wall clock").
func (s *SQLite) SweepExpired(configKey string, metricID int64, nowWallSec int64, ttlSec int64) error {
	tbl := tableName(configKey, metricID)
	cutoff := nowWallSec - ttlSec
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE wall_clock_sec < ?`, tbl), cutoff)
	return err
}

// DropConfig removes every table belonging to configKey, used when a
// configuration is removed (§8 invariant: install/remove leaves no state).
func (s *SQLite) DropConfig(configKey string) error {
	sum := sha1.Sum([]byte(configKey))
	h := fmt.Sprintf("%x", sum[:8])
	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ?`, "restricted_"+h+"_%")
	if err != nil {
		return err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	rows.Close()
	for _, t := range tables {
		if _, err := s.db.Exec("DROP TABLE " + t); err != nil {
			return err
		}
	}
	return nil
}

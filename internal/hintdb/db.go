// Package hintdb implements the SQLite repository behind the hint engine.
//
// The repository owns the schema and every SQL statement; hints cross this
// boundary as typed values and are serialized to JSON columns here and only
// here. Lookups that find nothing return (nil, nil) rather than an error so
// callers decide what a miss means.
package hintdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is swappable so tests can inject connection failures.
var openDB = sql.Open

// DB is the hint repository over a single SQLite file.
type DB struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the hint database at path, applies the
// connection pragmas and bootstraps the schema.
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("hintdb: create data directory: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("hintdb: open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under the WAL without limiting this workload.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("hintdb: apply %q: %w", pragma, err)
		}
	}

	d := &DB{db: db, path: path}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the underlying database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file location.
func (d *DB) Path() string {
	return d.path
}

// ─── Schema ───────────────────────────────────────────────────────────────────

func (d *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS hints (
			id              TEXT PRIMARY KEY,
			domain          TEXT NOT NULL,
			path_pattern    TEXT,
			url_hash        TEXT NOT NULL,
			pattern_type    TEXT NOT NULL,
			selector_guard  TEXT,
			dom_fingerprint TEXT,
			recipe          TEXT NOT NULL,
			description     TEXT NOT NULL,
			context         TEXT,
			success_count   INTEGER NOT NULL DEFAULT 0,
			failure_count   INTEGER NOT NULL DEFAULT 0,
			confidence      REAL NOT NULL DEFAULT 0.5,
			author_id       TEXT NOT NULL DEFAULT 'unknown',
			created_at      INTEGER NOT NULL,
			last_used_at    INTEGER,
			last_success_at INTEGER,
			version         INTEGER NOT NULL DEFAULT 1,
			is_active       INTEGER NOT NULL DEFAULT 1,
			parent_hint_id  TEXT,
			related_hints   TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS hint_history (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			hint_id           TEXT NOT NULL REFERENCES hints(id),
			executed_at       INTEGER NOT NULL,
			success           INTEGER NOT NULL,
			error_message     TEXT,
			execution_time_ms INTEGER,
			author_id         TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS hint_conflicts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			domain       TEXT NOT NULL,
			path_pattern TEXT,
			hint_a       TEXT NOT NULL,
			hint_b       TEXT NOT NULL,
			resolution   TEXT NOT NULL,
			resolved_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hints_domain ON hints(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_hints_url_hash ON hints(url_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_hints_confidence ON hints(confidence DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_hints_last_used ON hints(last_used_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_hints_pattern_type ON hints(pattern_type)`,
		`CREATE INDEX IF NOT EXISTS idx_hints_active ON hints(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_history_hint ON hint_history(hint_id)`,
		`CREATE INDEX IF NOT EXISTS idx_history_executed ON hint_history(executed_at)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("hintdb: migrate schema: %w", err)
		}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so row helpers work
// inside and outside transactions.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ─── Value helpers ────────────────────────────────────────────────────────────

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableMillis maps the zero time to NULL, otherwise epoch milliseconds.
func nullableMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func timeOf(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return time.UnixMilli(ms.Int64).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package sqlite implements storage.RelationalStore on a single SQLite
// database file. It holds facts, entities, preferences, rules, and the typed
// edge set used for graph traversal.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // SQLite driver
)

// Schema is the embedded DDL applied on open. Statements are idempotent so
// reopening an existing database is safe.
const Schema = `
CREATE TABLE IF NOT EXISTS facts (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	content     TEXT NOT NULL,
	category    TEXT NOT NULL,
	confidence  REAL NOT NULL,
	source      TEXT NOT NULL,
	deprecated  INTEGER NOT NULL DEFAULT 0,
	context_ref TEXT,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id, deprecated);
CREATE INDEX IF NOT EXISTS idx_facts_category ON facts(user_id, category);

CREATE TABLE IF NOT EXISTS entities (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	type          TEXT NOT NULL,
	mention_count INTEGER NOT NULL DEFAULT 1,
	first_seen    TIMESTAMP NOT NULL,
	last_seen     TIMESTAMP NOT NULL,
	UNIQUE(user_id, name)
);

CREATE TABLE IF NOT EXISTS preferences (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	strength   REAL NOT NULL,
	confirmed  INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE(user_id, key)
);

CREATE TABLE IF NOT EXISTS user_rules (
	rule_id      TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	text         TEXT NOT NULL,
	priority     TEXT NOT NULL,
	context      TEXT NOT NULL,
	active       INTEGER NOT NULL DEFAULT 1,
	user_defined INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_user ON user_rules(user_id, active);

CREATE TABLE IF NOT EXISTS edges (
	id         TEXT PRIMARY KEY,
	from_id    TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	resolved   INTEGER NOT NULL DEFAULT 0,
	resolution TEXT,
	winning_id TEXT,
	UNIQUE(from_id, to_id, type)
);

CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
`

// Store implements storage.RelationalStore using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, configures WAL mode, and creates the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	// Wait instead of failing with SQLITE_BUSY when the connection is held
	// by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close flushes the WAL into the main database file and releases resources.
// The TRUNCATE checkpoint removes the -shm and -wal files so that another
// process can open the database without encountering stale WAL state.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}

	return s.db.Close()
}

// nullableString converts a string to sql.NullString.
// An empty string is treated as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

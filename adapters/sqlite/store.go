// Package sqlite implements the durable repositories over a single SQLite
// file so registration's lookup, conflict check and write share one
// transaction and visibility boundary.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id             TEXT PRIMARY KEY,
	email          TEXT NOT NULL DEFAULT '',
	wallet_address TEXT NOT NULL DEFAULT '',
	display_name   TEXT NOT NULL DEFAULT '',
	auth_provider  TEXT NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_email
	ON identities(email) WHERE email != '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_wallet
	ON identities(wallet_address) WHERE wallet_address != '';

CREATE TABLE IF NOT EXISTS credentials (
	id                    TEXT PRIMARY KEY,
	identity_id           TEXT NOT NULL REFERENCES identities(id),
	credential_identifier TEXT NOT NULL UNIQUE,
	public_key_x          TEXT NOT NULL,
	public_key_y          TEXT NOT NULL,
	usage_counter         INTEGER NOT NULL DEFAULT 0,
	device_metadata       TEXT NOT NULL DEFAULT '{}',
	authenticator_model   TEXT NOT NULL DEFAULT '',
	chain_info            TEXT NOT NULL DEFAULT '',
	is_active             INTEGER NOT NULL DEFAULT 1,
	created_at            INTEGER NOT NULL,
	last_used_at          INTEGER
);
CREATE INDEX IF NOT EXISTS idx_credentials_identity
	ON credentials(identity_id);

CREATE TABLE IF NOT EXISTS sessions (
	token_hash  TEXT PRIMARY KEY,
	identity_id TEXT NOT NULL,
	issued_at   INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	action        TEXT NOT NULL,
	identity_id   TEXT NOT NULL DEFAULT '',
	resource_type TEXT NOT NULL DEFAULT '',
	resource_id   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    INTEGER NOT NULL
);
`

// Store implements ports.IdentityStore, ports.SessionStore and
// ports.AuditStore over one SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path and applies the schema.
// ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// SQLite has a single writer; funneling through one connection keeps
	// the immediate transaction lock meaningful under database/sql pooling.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

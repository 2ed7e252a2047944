// Package sqlite implements the repository interfaces on top of SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C toolchain, and the
// binary cross-compiles like any other Go program.
//
// ONE CONNECTION:
// SQLite allows a single writer at a time. Rather than fight SQLITE_BUSY under
// concurrent requests, the pool is pinned to one connection and database/sql
// queues callers for us. This also keeps ":memory:" databases coherent, since
// every new connection to ":memory:" would otherwise get its own empty
// database.
//
// CONSTRAINTS DO THE CONCURRENCY CONTROL:
// Invariants that must hold under concurrent requests (one vote per user and
// quote, unique usernames, append-only moderation log) are declared in the
// schema below. Application code never does check-then-insert for them; it
// inserts and translates the constraint error.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/quoteboard/internal/repository"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB owns the connection pool. The per-table stores returned by Users(),
// Quotes(), Votes() and ModLog() share it.
type DB struct {
	conn *sql.DB
}

// dsn turns a file path into a connection string that enables foreign keys.
// Foreign keys are OFF by default in SQLite and the pragma is per connection,
// so it goes in the DSN where every connection the pool opens picks it up.
// Votes rely on it to disappear together with their quote or user.
func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)"
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/quoteboard.db" → file-based database
//   - ":memory:"           → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the user store.
func (db *DB) Users() *UserDB { return &UserDB{conn: db.conn} }

// Quotes returns the quote store.
func (db *DB) Quotes() *QuoteDB { return &QuoteDB{conn: db.conn} }

// Votes returns the vote store.
func (db *DB) Votes() *VoteDB { return &VoteDB{conn: db.conn} }

// ModLog returns the moderation log store.
func (db *DB) ModLog() *ModLogDB { return &ModLogDB{conn: db.conn} }

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT NOT NULL COLLATE NOCASE UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			flags         INTEGER NOT NULL DEFAULT 0,
			github_id     INTEGER UNIQUE,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS quotes (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			author       TEXT NOT NULL,
			body         TEXT NOT NULL,
			approved     INTEGER NOT NULL DEFAULT 0,
			upvotes      INTEGER NOT NULL DEFAULT 0 CHECK (upvotes >= 0),
			submitter_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
			created_at   DATETIME NOT NULL,
			updated_at   DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_quotes_approved_created ON quotes(approved, created_at);
		CREATE INDEX IF NOT EXISTS idx_quotes_approved_upvotes ON quotes(approved, upvotes);
	`)
	if err != nil {
		return fmt.Errorf("creating quotes table: %w", err)
	}

	// UNIQUE (user_id, quote_id) is the one-vote-per-user-per-quote rule.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS votes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			quote_id   INTEGER NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL,
			UNIQUE (user_id, quote_id)
		);
		CREATE INDEX IF NOT EXISTS idx_votes_quote_id ON votes(quote_id);
	`)
	if err != nil {
		return fmt.Errorf("creating votes table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS modlog (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			at     DATETIME NOT NULL,
			actor  TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT ''
		);
		CREATE TRIGGER IF NOT EXISTS modlog_no_update BEFORE UPDATE ON modlog
		BEGIN
			SELECT RAISE(ABORT, 'modlog is append-only');
		END;
		CREATE TRIGGER IF NOT EXISTS modlog_no_delete BEFORE DELETE ON modlog
		BEGIN
			SELECT RAISE(ABORT, 'modlog is append-only');
		END;
	`)
	if err != nil {
		return fmt.Errorf("creating modlog table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Extended codes disabled: fall back to the message.
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY constraint
// failure, e.g. a vote for a quote that no longer exists.
func isForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "FOREIGN KEY")
	}
	return false
}

// clampList applies the default and maximum page sizes.
func clampList(opts repository.ListOptions) (limit, offset int) {
	limit, offset = opts.Limit, opts.Offset
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

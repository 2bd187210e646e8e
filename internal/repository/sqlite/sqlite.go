// Package sqlite implements the repository interfaces on an embedded
// SQLite database.
//
// The driver is modernc.org/sqlite — a pure Go translation of SQLite,
// so no C toolchain is needed and cross-compilation stays trivial. The
// database is a single file owned by the process; WAL mode lets the
// request handlers read while a scheduler write is in flight.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository
// interfaces. The pool is the only shared mutable resource in the
// process; callers block on acquisition, bounded by their own context.
type DB struct {
	conn *sql.DB
}

// New opens (creating if necessary) the database at dbPath and runs
// migrations. Use ":memory:" in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// A single connection serializes writers, which sidesteps
	// SQLITE_BUSY under concurrent scheduler and handler writes. It
	// also keeps ":memory:" working: every pooled connection would
	// otherwise see its own empty database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in progress —
	// the schedulers and the HTTP handlers share this database.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Needed for the ON DELETE CASCADE on check_history and daily_hits.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Call it on shutdown so the WAL is
// checkpointed and the file lock released.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL,
			username      TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     INTEGER NOT NULL DEFAULT 0,
			role          TEXT NOT NULL DEFAULT 'user',
			active        INTEGER NOT NULL DEFAULT 1,
			approved      INTEGER NOT NULL DEFAULT 0,
			approved_at   DATETIME,
			approved_by   TEXT,
			created_at    DATETIME NOT NULL,
			last_login_at DATETIME
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email    ON users(email)    WHERE email != '';
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github   ON users(github_id) WHERE github_id != 0;
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS playlists (
			token                TEXT PRIMARY KEY,
			owner_id             TEXT REFERENCES users(id) ON DELETE SET NULL,
			current_content      TEXT NOT NULL,
			original_content     TEXT NOT NULL DEFAULT '',
			rules_json           TEXT,
			source_url           TEXT NOT NULL DEFAULT '',
			name                 TEXT NOT NULL DEFAULT '',
			auto_update          INTEGER NOT NULL DEFAULT 0,
			auto_update_interval INTEGER NOT NULL DEFAULT 3600,
			last_update_at       DATETIME,
			last_update_error    TEXT NOT NULL DEFAULT '',
			total_hits           INTEGER NOT NULL DEFAULT 0,
			show_on_board        INTEGER NOT NULL DEFAULT 0,
			last_status          TEXT NOT NULL DEFAULT 'UNKNOWN',
			last_check_at        DATETIME,
			last_check_error     TEXT NOT NULL DEFAULT '',
			created_at           DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_playlists_owner   ON playlists(owner_id);
		CREATE INDEX IF NOT EXISTS idx_playlists_refresh ON playlists(auto_update) WHERE auto_update = 1;
	`)
	if err != nil {
		return fmt.Errorf("creating playlists table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS check_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			token      TEXT NOT NULL REFERENCES playlists(token) ON DELETE CASCADE,
			checked_at DATETIME NOT NULL,
			status     TEXT NOT NULL,
			http_code  INTEGER,
			error      TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_check_history_token ON check_history(token, checked_at);
	`)
	if err != nil {
		return fmt.Errorf("creating check_history table: %w", err)
	}

	// day is a 'YYYY-MM-DD' string so the per-period board queries can
	// compare it lexicographically.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS daily_hits (
			token TEXT NOT NULL REFERENCES playlists(token) ON DELETE CASCADE,
			day   TEXT NOT NULL,
			hits  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (token, day)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating daily_hits table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS system_settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
		INSERT OR IGNORE INTO system_settings (key, value, updated_at)
		VALUES ('open_registration', 'false', CURRENT_TIMESTAMP);
	`)
	if err != nil {
		return fmt.Errorf("creating system_settings table: %w", err)
	}

	return nil
}

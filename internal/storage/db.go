package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schemaVersion is stored in PRAGMA user_version. Bump it when adding a
// migration step to migrate.
const schemaVersion = 1

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// OpenDB opens (or creates) the surfshell SQLite database in the given data directory.
func OpenDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "surfshell.db")

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn, path: dbPath}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying sql.DB for direct queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

// migrate applies schema steps based on user_version.
func (db *DB) migrate() error {
	var version int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS visits (
			id         TEXT    PRIMARY KEY,
			url        TEXT    NOT NULL,
			title      TEXT    NOT NULL DEFAULT '',
			host       TEXT    NOT NULL DEFAULT '',
			visited_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_visits_visited_at ON visits(visited_at DESC);
		CREATE INDEX IF NOT EXISTS idx_visits_host ON visits(host);
		`
		if _, err := db.conn.Exec(schema); err != nil {
			return fmt.Errorf("migration 1: %w", err)
		}
	}

	if version < schemaVersion {
		if _, err := db.conn.Exec(fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
			return fmt.Errorf("setting user_version: %w", err)
		}
	}
	return nil
}

// Package store persists all per-guild state: users, relationship
// metrics, long-term facts, and the short-term message log.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database for one guild's state.
type DB struct {
	db         *sql.DB
	path       string
	archiveDir string
}

// Open opens or creates the database at dbPath. Archive files produced by
// ArchiveAndClear are written next to the database unless SetArchiveDir
// is called.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &DB{db: db, path: dbPath, archiveDir: filepath.Dir(dbPath)}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// SetArchiveDir overrides where archive files are written.
func (s *DB) SetArchiveDir(dir string) {
	s.archiveDir = dir
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *DB) Path() string {
	return s.path
}

// migrate creates the schema and applies incremental migrations. All
// runtime queries assume the fully migrated schema; nothing probes for
// column existence outside this function.
func (s *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS long_term_memory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		fact TEXT NOT NULL,
		source_user_id INTEGER,
		source_nickname TEXT,
		first_mentioned_timestamp DATETIME NOT NULL,
		last_mentioned_timestamp DATETIME NOT NULL,
		reference_count INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'active',
		superseded_by_id INTEGER,
		FOREIGN KEY (user_id) REFERENCES users (user_id),
		FOREIGN KEY (superseded_by_id) REFERENCES long_term_memory(id)
	);

	CREATE INDEX IF NOT EXISTS idx_ltm_user ON long_term_memory(user_id);
	CREATE INDEX IF NOT EXISTS idx_ltm_status ON long_term_memory(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ltm_active_unique
		ON long_term_memory(user_id, fact) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS relationship_metrics (
		user_id INTEGER PRIMARY KEY,
		rapport INTEGER NOT NULL DEFAULT 5,
		trust INTEGER NOT NULL DEFAULT 5,
		anger INTEGER NOT NULL DEFAULT 0,
		fear INTEGER NOT NULL DEFAULT 0,
		respect INTEGER NOT NULL DEFAULT 5,
		affection INTEGER NOT NULL DEFAULT 3,
		familiarity INTEGER NOT NULL DEFAULT 5,
		intimidation INTEGER NOT NULL DEFAULT 0,
		formality INTEGER NOT NULL DEFAULT 0,
		rapport_locked INTEGER NOT NULL DEFAULT 0,
		trust_locked INTEGER NOT NULL DEFAULT 0,
		anger_locked INTEGER NOT NULL DEFAULT 0,
		fear_locked INTEGER NOT NULL DEFAULT 0,
		respect_locked INTEGER NOT NULL DEFAULT 0,
		affection_locked INTEGER NOT NULL DEFAULT 0,
		familiarity_locked INTEGER NOT NULL DEFAULT 0,
		intimidation_locked INTEGER NOT NULL DEFAULT 0,
		formality_locked INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (user_id) REFERENCES users (user_id)
	);

	CREATE TABLE IF NOT EXISTS short_term_message_log (
		message_id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL,
		content TEXT,
		timestamp DATETIME NOT NULL,
		directed_at_bot INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_stml_timestamp ON short_term_message_log(timestamp);

	CREATE TABLE IF NOT EXISTS message_archive (
		message_id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL,
		content TEXT,
		timestamp DATETIME NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations applies incremental schema changes.
func (s *DB) runMigrations() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		version = 1
	}

	// Migration v2: archived_at column on message_archive, so operators can
	// tell when a row was drained from the live log.
	if version < 2 {
		s.db.Exec("ALTER TABLE message_archive ADD COLUMN archived_at DATETIME")
		s.db.Exec("INSERT INTO schema_version (version) VALUES (2)")
		log.Println("[store] Migration to v2 completed")
	}

	return nil
}

// Stats returns row counts per table, for the admin CLI.
func (s *DB) Stats() (map[string]int, error) {
	stats := make(map[string]int)

	tables := []string{"users", "long_term_memory", "relationship_metrics", "short_term_message_log", "message_archive"}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, err
		}
		stats[table] = count
	}

	return stats, nil
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a project, position or symbol has no row.
var ErrNotFound = errors.New("store: not found")

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both contexts.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store wraps a SQLite connection holding the cross-reference graphs of
// every indexed project.
type Store struct {
	db     *sql.DB
	q      Querier // active querier: db or tx
	dbPath string
}

// cacheDir returns the default cache directory for databases.
func cacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	dir := filepath.Join(home, ".cache", "codebase-xref")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir cache: %w", err)
	}
	return dir, nil
}

// DefaultPath is the database used when no path is configured.
func DefaultPath() (string, error) {
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "xref.db"), nil
}

// Open opens or creates the default database.
func Open() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return OpenPath(path)
}

// OpenPath opens a SQLite database at the given path.
func OpenPath(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory SQLite database (for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	// Every pooled connection would get its own empty in-memory database.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, dbPath: ":memory:"}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// WithTransaction executes fn within a single SQLite transaction.
// The callback receives a transaction-scoped Store; the receiver keeps using
// the plain connection, so concurrent readers are unaffected.
func (s *Store) WithTransaction(fn func(txStore *Store) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, dbPath: s.dbPath}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		name TEXT PRIMARY KEY,
		indexed_at TEXT NOT NULL,
		root_path TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS file_hashes (
		project TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
		rel_path TEXT NOT NULL,
		hash TEXT NOT NULL,
		PRIMARY KEY (project, rel_path)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
		rel_path TEXT NOT NULL,
		uri TEXT NOT NULL,
		external INTEGER NOT NULL DEFAULT 0,
		moniker_path TEXT NOT NULL DEFAULT '',
		default_library INTEGER NOT NULL DEFAULT 0,
		UNIQUE(project, uri)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(project, rel_path);

	CREATE TABLE IF NOT EXISTS symbols (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
		descriptor TEXT NOT NULL,
		name TEXT NOT NULL,
		variant TEXT NOT NULL,
		local INTEGER NOT NULL DEFAULT 0,
		hover TEXT NOT NULL DEFAULT '',
		alias_of INTEGER REFERENCES symbols(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_symbols_descriptor ON symbols(project, descriptor);

	CREATE TABLE IF NOT EXISTS ranges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
		document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		symbol_id INTEGER NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		start_line INTEGER NOT NULL,
		start_char INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		end_char INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ranges_document ON ranges(document_id, start_line);

	CREATE TABLE IF NOT EXISTS items (
		project TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
		symbol_id INTEGER NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
		range_id INTEGER NOT NULL REFERENCES ranges(id) ON DELETE CASCADE,
		property TEXT NOT NULL,
		PRIMARY KEY (symbol_id, range_id, property)
	);

	CREATE TABLE IF NOT EXISTS monikers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
		symbol_id INTEGER NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
		scheme TEXT NOT NULL,
		identifier TEXT NOT NULL,
		kind TEXT NOT NULL,
		package_name TEXT NOT NULL DEFAULT '',
		package_version TEXT NOT NULL DEFAULT '',
		package_manager TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_monikers_identifier ON monikers(identifier);
	CREATE INDEX IF NOT EXISTS idx_monikers_symbol ON monikers(symbol_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Migration: databases created before default_library was tracked.
	var colCount int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('documents') WHERE name='default_library'`).Scan(&colCount)
	if colCount == 0 {
		if _, err := s.db.Exec(`ALTER TABLE documents ADD COLUMN default_library INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("add documents.default_library: %w", err)
		}
	}
	return nil
}

// Now returns the current time in ISO 8601 format.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Package store provides content-addressed persistent storage for offer
// requests, preimages, and completed offers, backed by SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the swap engine's durable state: pending requests keyed by
// their own content hash, preimages keyed by the request they belong to,
// and completed offers keyed by a sequential index.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds store configuration.
type Config struct {
	DataDir string
}

// New opens (creating if necessary) the sqlite database under
// cfg.DataDir and ensures the schema exists.
func New(cfg *Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "swaps.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		request_hash TEXT PRIMARY KEY,
		cbor_bytes   BLOB NOT NULL,
		created_at   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS preimages (
		request_hash TEXT PRIMARY KEY,
		preimage     BLOB NOT NULL,
		created_at   INTEGER NOT NULL,
		FOREIGN KEY(request_hash) REFERENCES requests(request_hash)
	);

	CREATE TABLE IF NOT EXISTS offers (
		offer_index   INTEGER PRIMARY KEY AUTOINCREMENT,
		request_hash  TEXT NOT NULL UNIQUE,
		cbor_bytes    BLOB NOT NULL,
		swap_id_hex   TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL,
		FOREIGN KEY(request_hash) REFERENCES requests(request_hash)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

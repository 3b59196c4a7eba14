package quota

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileStore keeps the ledger in a single JSON document.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path; parent directories are created on save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the ledger document. A missing file is an empty ledger.
func (s *FileStore) Load() (map[string]KeyUsage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]KeyUsage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", s.path, err)
	}
	out := map[string]KeyUsage{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("ledger: decode %s: %w", s.path, err)
	}
	return out, nil
}

// Save writes the whole ledger through a temp file and rename.
func (s *FileStore) Save(usage map[string]KeyUsage) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("ledger: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(usage, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("ledger: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("ledger: rename: %w", err)
	}
	return nil
}

// SQLiteStore keeps the ledger in a SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the ledger database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("ledger: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS key_usage (
		key_id         TEXT PRIMARY KEY,
		requests_today INTEGER NOT NULL DEFAULT 0,
		last_reset     TEXT NOT NULL,
		total_requests INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads every usage row.
func (s *SQLiteStore) Load() (map[string]KeyUsage, error) {
	rows, err := s.db.Query(`SELECT key_id, requests_today, last_reset, total_requests FROM key_usage`)
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer rows.Close()

	out := map[string]KeyUsage{}
	for rows.Next() {
		var id string
		var u KeyUsage
		if err := rows.Scan(&id, &u.RequestsToday, &u.LastReset, &u.TotalRequests); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		out[id] = u
	}
	return out, rows.Err()
}

// Save upserts every record in one transaction.
func (s *SQLiteStore) Save(usage map[string]KeyUsage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO key_usage (key_id, requests_today, last_reset, total_requests)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key_id) DO UPDATE SET
			requests_today = excluded.requests_today,
			last_reset     = excluded.last_reset,
			total_requests = excluded.total_requests`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("ledger: prepare: %w", err)
	}
	defer stmt.Close()
	for id, u := range usage {
		if _, err := stmt.Exec(id, u.RequestsToday, u.LastReset, u.TotalRequests); err != nil {
			tx.Rollback()
			return fmt.Errorf("ledger: upsert %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

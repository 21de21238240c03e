// Package session persists the exported login-session blob so restarts can
// resume without a fresh credential login (which Instagram rate-limits and
// challenges aggressively).
package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one persisted session.
type Entry struct {
	Username  string
	Blob      []byte
	UpdatedAt time.Time
}

// Store keeps session blobs in a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates the store, its parent directory, and the schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("session: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			username   TEXT PRIMARY KEY,
			blob       BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the blob for a username.
func (s *Store) Save(username string, blob []byte) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions (username, blob, updated_at)
		VALUES (?, ?, ?)
	`, username, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// Load returns the persisted session for a username, or nil when none exists.
func (s *Store) Load(username string) (*Entry, error) {
	row := s.db.QueryRow(`
		SELECT username, blob, updated_at FROM sessions WHERE username = ?
	`, username)

	var entry Entry
	var updatedAt int64
	err := row.Scan(&entry.Username, &entry.Blob, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	entry.UpdatedAt = time.Unix(updatedAt, 0)
	return &entry, nil
}

// Delete removes the persisted session for a username.
func (s *Store) Delete(username string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

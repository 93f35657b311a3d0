// Package cache persists serialized part trees so the expensive MIME
// parse happens at most once per message. The store is a local sqlite
// database keyed by message GUID. Blobs are host-specific: the caller
// drops the whole store when the host or the software version changes.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrMiss is returned by Get when no blob is cached for the GUID.
var ErrMiss = errors.New("part cache miss")

// Store is a part-tree blob store. It is safe for concurrent use; the
// underlying database handle pools connections.
type Store struct {
	db *sql.DB
}

// Open opens or creates a store at the given path. The special path
// ":memory:" yields a throwaway in-process store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS part_cache (
			guid       TEXT PRIMARY KEY,
			blob       BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create part_cache table: %w", err)
	}

	return &Store{db: db}, nil
}

// Put stores or replaces the blob for a message GUID.
func (s *Store) Put(guid string, blob []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO part_cache (guid, blob, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(guid) DO UPDATE SET
			blob = excluded.blob,
			updated_at = excluded.updated_at`,
		guid, blob, time.Now().Unix())
	return err
}

// Get returns the cached blob for a message GUID, or ErrMiss.
func (s *Store) Get(guid string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(
		`SELECT blob FROM part_cache WHERE guid = ?`, guid).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// Delete drops the blob for a message GUID. Deleting an absent GUID is
// not an error.
func (s *Store) Delete(guid string) error {
	_, err := s.db.Exec(`DELETE FROM part_cache WHERE guid = ?`, guid)
	return err
}

// InvalidateAll empties the store. Callers use this when the host or
// software version changes, since blobs are not portable.
func (s *Store) InvalidateAll() error {
	_, err := s.db.Exec(`DELETE FROM part_cache`)
	return err
}

// Len reports how many blobs are cached.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM part_cache`).Scan(&n)
	return n, err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Package cachestore provides the shared key-value cache backend used by the
// price cache. Entries carry a TTL and are replaced wholesale; a companion lock
// table provides the atomic acquire-with-expiry primitive that coordinates
// fetches across worker processes.
package cachestore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when a key is absent or its entry has expired.
var ErrNotFound = errors.New("cachestore: key not found")

// Store is the backend contract: get/set-with-TTL plus a cross-process
// lock-with-expiry. Implementations must make AcquireLock atomic.
type Store interface {
	Get(key string, dest interface{}) error
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) error
	AcquireLock(key string, ttl time.Duration) (bool, error)
	ReleaseLock(key string) error
}

// SQLiteStore implements Store on a shared sqlite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates the store and ensures its tables exist.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cache (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS locks (
			key        TEXT PRIMARY KEY,
			expires_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create cache tables: %w", err)
	}
	return nil
}

// Get retrieves a value and decodes it into dest.
// Returns ErrNotFound if the key is missing or past its expiry.
func (s *SQLiteStore) Get(key string, dest interface{}) error {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRow("SELECT value, expires_at FROM cache WHERE key = ?", key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read cache key %q: %w", key, err)
	}

	if s.now().Unix() >= expiresAt {
		return ErrNotFound
	}

	if err := msgpack.Unmarshal(value, dest); err != nil {
		return fmt.Errorf("failed to decode cache key %q: %w", key, err)
	}
	return nil
}

// Set stores a value with an expiration, replacing any previous entry.
func (s *SQLiteStore) Set(key string, value interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache key %q: %w", key, err)
	}

	expiresAt := s.now().Add(ttl).Unix()
	_, err = s.db.Exec(`
		INSERT INTO cache (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, key, payload, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write cache key %q: %w", key, err)
	}
	return nil
}

// Delete removes a cache entry.
func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM cache WHERE key = ?", key)
	return err
}

// AcquireLock attempts to take the fetch lock for a key. It succeeds when no
// lock exists or the existing one has expired; the whole check-and-take is a
// single upsert so racing processes cannot both win.
func (s *SQLiteStore) AcquireLock(key string, ttl time.Duration) (bool, error) {
	nowUnix := s.now().Unix()
	res, err := s.db.Exec(`
		INSERT INTO locks (key, expires_at)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			expires_at = excluded.expires_at
		WHERE locks.expires_at <= ?
	`, key, s.now().Add(ttl).Unix(), nowUnix)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to inspect lock result %q: %w", key, err)
	}
	return rows > 0, nil
}

// ReleaseLock frees the fetch lock for a key. Releasing an absent lock is a no-op.
func (s *SQLiteStore) ReleaseLock(key string) error {
	_, err := s.db.Exec("DELETE FROM locks WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to release lock %q: %w", key, err)
	}
	return nil
}

// Cleanup removes expired cache entries and locks. Called periodically by the
// maintenance job; correctness never depends on it.
func (s *SQLiteStore) Cleanup() error {
	nowUnix := s.now().Unix()
	if _, err := s.db.Exec("DELETE FROM cache WHERE expires_at <= ?", nowUnix); err != nil {
		return fmt.Errorf("failed to clean expired cache entries: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM locks WHERE expires_at <= ?", nowUnix); err != nil {
		return fmt.Errorf("failed to clean expired locks: %w", err)
	}
	return nil
}

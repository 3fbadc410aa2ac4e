package cache

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS results (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	conn *sql.DB
	path string

	hits   atomic.Int64
	misses atomic.Int64
}

// OpenSQLite creates or opens a SQLite store at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "setting journal mode")
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "creating results table")
	}

	return &SQLite{conn: conn, path: path}, nil
}

// Get returns the stored value for key.
func (s *SQLite) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	var value []byte
	err := s.conn.QueryRowContext(ctx, "SELECT value FROM results WHERE key = ?", key.String()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading cache entry %s", key)
	}
	s.hits.Add(1)
	return value, true, nil
}

// Put inserts or replaces the value for key.
func (s *SQLite) Put(ctx context.Context, key Key, value []byte) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO results (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = CURRENT_TIMESTAMP`,
		key.String(), value,
	)
	if err != nil {
		return errors.Wrapf(err, "writing cache entry %s", key)
	}
	return nil
}

// Len returns the number of stored entries.
func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM results").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting cache entries")
	}
	return n, nil
}

// Stats returns hit and miss counts.
func (s *SQLite) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLite) Close() error { return s.conn.Close() }

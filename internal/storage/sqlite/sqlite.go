// Package sqlite implements storage.Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store implements storage.Store. All writes go through single statements or
// short transactions; SQLite's upsert makes create-or-update races resolve at
// the constraint rather than in application code.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies the
// schema. Use ":memory:" for an in-memory database in tests.
func Open(ctx context.Context, path string) (*Store, error) {
	var connStr string
	if path == ":memory:" {
		// Shared cache so the connection pool sees one database.
		connStr = "file::memory:?cache=shared&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
		connStr = "file:" + path + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// In-memory databases are per-connection unless the pool is pinned.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Timestamps are stored as RFC 3339 UTC text so they are portable across
// drivers and stable under string comparison.
const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// nullTime scans a nullable timestamp column.
type nullTime struct {
	t *time.Time
}

func (n *nullTime) Scan(src any) error {
	if src == nil {
		n.t = nil
		return nil
	}
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case time.Time:
		t := v.UTC()
		n.t = &t
		return nil
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
	t, err := parseTime(raw)
	if err != nil {
		return err
	}
	n.t = &t
	return nil
}

// scanTime scans a non-nullable timestamp column.
type scanTime struct {
	t time.Time
}

func (s *scanTime) Scan(src any) error {
	var n nullTime
	if err := n.Scan(src); err != nil {
		return err
	}
	if n.t == nil {
		return fmt.Errorf("unexpected NULL timestamp")
	}
	s.t = *n.t
	return nil
}

// nullBytes scans a nullable TEXT column into a byte slice (used for the
// opaque JSON blobs on issues).
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

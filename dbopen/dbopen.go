// Package dbopen opens the SQLite database that holds document availability
// events. A file database runs in WAL mode; ":memory:" is pinned to a single
// connection so every query sees the same database.
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("data/events.db", dbopen.WithSchema(observability.Schema), dbopen.WithMkdirAll())
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

// driverName is registered by modernc.org/sqlite.
const driverName = "sqlite"

type settings struct {
	busyTimeoutMS int
	mkdirAll      bool
	schemas       []string
}

// Option customises Open.
type Option func(*settings)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 5000.
func WithBusyTimeout(ms int) Option { return func(s *settings) { s.busyTimeoutMS = ms } }

// WithMkdirAll creates the parent directories of a file database.
func WithMkdirAll() Option { return func(s *settings) { s.mkdirAll = true } }

// WithSchema queues DDL executed once the pragmas are set. Statements must
// be idempotent (CREATE ... IF NOT EXISTS).
func WithSchema(ddl string) Option { return func(s *settings) { s.schemas = append(s.schemas, ddl) } }

// IsMemory reports whether path names an in-memory database.
func IsMemory(path string) bool {
	return path == Memory || strings.HasPrefix(path, "file::memory:")
}

// Open opens the database at path, applies pragmas and schemas, and checks
// the connection.
func Open(path string, opts ...Option) (*sql.DB, error) {
	s := settings{busyTimeoutMS: 5000}
	for _, o := range opts {
		o(&s)
	}
	if path == "" {
		return nil, fmt.Errorf("dbopen: empty path")
	}
	memory := IsMemory(path)

	if s.mkdirAll && !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}

	stmts := pragmas(s, memory)
	stmts = append(stmts, s.schemas...)
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: %s: %w", firstLine(stmt), err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens a private in-memory database and closes it when the test
// ends.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(Memory, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func pragmas(s settings, memory bool) []string {
	p := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeoutMS)}
	if !memory {
		p = append(p, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	return p
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

// Package duckdb persists normalized security log records in DuckDB and
// serves them back as the dashboards' log store.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/warden/internal/duckdb/migrate"
)

// DefaultQueryTimeout bounds every store query unless overridden.
const DefaultQueryTimeout = 30 * time.Second

// ErrSnapshotExists is returned when a snapshot target is already on disk.
var ErrSnapshotExists = errors.New("duckdb: snapshot target already exists")

// Store owns the DuckDB handle. Reads share the lock; writes, deletes and
// snapshots take it exclusively.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	// QueryTimeout bounds each statement.
	QueryTimeout time.Duration
}

// NewStore opens the database at dbPath, creating parent directories, and
// migrates it to the latest schema. An empty dbPath opens an in-memory
// database, which is what the tests use.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("duckdb: create data dir: %w", err)
		}
	}
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open %q: %w", dbPath, err)
	}
	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: migrate: %w", err)
	}

	s := &Store{db: db, path: dbPath, QueryTimeout: DefaultQueryTimeout}
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		s.QueryTimeout = queryTimeout[0]
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DBPath is the database file, empty for in-memory stores.
func (s *Store) DBPath() string { return s.path }

func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.QueryTimeout)
}

// SnapshotTo writes a consistent copy of the whole database, schema
// included, to a new DuckDB file at dstPath. It works for in-memory stores
// too. The copy is built under a temporary name and renamed into place.
func (s *Store) SnapshotTo(dstPath string) error {
	if _, err := os.Stat(dstPath); err == nil {
		return fmt.Errorf("%w: %s", ErrSnapshotExists, dstPath)
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("duckdb: create snapshot dir: %w", err)
	}
	tmp := dstPath + ".partial"
	_ = os.Remove(tmp)

	s.mu.Lock()
	err := s.copyDatabase(tmp)
	s.mu.Unlock()
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("duckdb: publish snapshot: %w", err)
	}
	return nil
}

// copyDatabase attaches target as a fresh database and copies every table
// into it. Attach and copy must share one connection.
func (s *Store) copyDatabase(target string) error {
	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("duckdb: snapshot conn: %w", err)
	}
	defer conn.Close()

	var source string
	if err := conn.QueryRowContext(ctx, `SELECT current_database()`).Scan(&source); err != nil {
		return fmt.Errorf("duckdb: snapshot source: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `ATTACH `+quoteLiteral(target)+` AS warden_snapshot`); err != nil {
		return fmt.Errorf("duckdb: attach snapshot: %w", err)
	}
	_, copyErr := conn.ExecContext(ctx, `COPY FROM DATABASE `+quoteIdent(source)+` TO warden_snapshot`)
	_, detachErr := conn.ExecContext(context.Background(), `DETACH warden_snapshot`)
	if copyErr != nil {
		return fmt.Errorf("duckdb: copy snapshot: %w", copyErr)
	}
	if detachErr != nil {
		return fmt.Errorf("duckdb: detach snapshot: %w", detachErr)
	}
	return nil
}

func quoteLiteral(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

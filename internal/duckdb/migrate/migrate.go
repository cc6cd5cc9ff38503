// Package migrate applies the embedded schema migrations for the security log store.
package migrate

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var files embed.FS

// Migration is one embedded schema step, named NNN_description.sql.
type Migration struct {
	Version  int
	Name     string
	Checksum string
	body     string
}

// Status describes a database relative to the embedded migrations.
type Status struct {
	Current int
	Latest  int
	Pending []string
	// Drifted lists applied migrations whose file changed since.
	Drifted []string
}

// Runner applies migrations in version order, each once, each in its own
// transaction.
type Runner struct{ db *sql.DB }

func NewRunner(db *sql.DB) *Runner { return &Runner{db: db} }

// Embedded returns every embedded migration sorted by version.
func Embedded() ([]Migration, error) {
	entries, err := fs.ReadDir(files, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: list: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migrate: bad version in %s: %w", e.Name(), err)
		}
		body, err := files.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(body)
		out = append(out, Migration{
			Version:  version,
			Name:     e.Name(),
			Checksum: hex.EncodeToString(sum[:]),
			body:     string(body),
		})
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		checksum   VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}
	return nil
}

// applied maps version to recorded checksum.
func (r *Runner) applied(ctx context.Context) (map[int]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("migrate: read schema_migrations: %w", err)
	}
	defer rows.Close()
	done := make(map[int]string)
	for rows.Next() {
		var v int
		var sum string
		if err := rows.Scan(&v, &sum); err != nil {
			return nil, err
		}
		done[v] = sum
	}
	return done, rows.Err()
}

// Run applies pending migrations.
func (r *Runner) Run() error { return r.RunContext(context.Background()) }

// RunContext applies every embedded migration not yet recorded. A changed
// file for an applied version is logged and left alone.
func (r *Runner) RunContext(ctx context.Context) error {
	st, err := r.StatusContext(ctx)
	if err != nil {
		return err
	}
	for _, name := range st.Drifted {
		zap.S().Warnf("duckdb: migration %s changed after it was applied", name)
	}
	if len(st.Pending) == 0 {
		return nil
	}

	migs, err := Embedded()
	if err != nil {
		return err
	}
	for _, m := range migs {
		if !slices.Contains(st.Pending, m.Name) {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return err
		}
		zap.S().Debugf("duckdb: applied migration %s", m.Name)
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, m Migration) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: %s: begin: %w", m.Name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, m.body); err != nil {
		return fmt.Errorf("migrate: %s: %w", m.Name, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)`,
		m.Version, m.Name, m.Checksum); err != nil {
		return fmt.Errorf("migrate: %s: record: %w", m.Name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migrate: %s: commit: %w", m.Name, err)
	}
	return nil
}

// Status compares the database with the embedded migrations.
func (r *Runner) Status() (Status, error) { return r.StatusContext(context.Background()) }

func (r *Runner) StatusContext(ctx context.Context) (Status, error) {
	var st Status
	if err := r.ensureTable(ctx); err != nil {
		return st, err
	}
	done, err := r.applied(ctx)
	if err != nil {
		return st, err
	}
	migs, err := Embedded()
	if err != nil {
		return st, err
	}
	for _, m := range migs {
		st.Latest = max(st.Latest, m.Version)
		sum, ok := done[m.Version]
		switch {
		case !ok:
			st.Pending = append(st.Pending, m.Name)
		case sum != m.Checksum:
			st.Drifted = append(st.Drifted, m.Name)
		}
	}
	for v := range done {
		st.Current = max(st.Current, v)
	}
	return st, nil
}

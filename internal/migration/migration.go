// Package migration applies the embedded SQL migrations in order.
package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// File is one numbered migration, e.g. 0003_invitations.sql.
type File struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Applied is a row of schema_migrations.
type Applied struct {
	Version   int
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// Migrator handles database schema migrations
type Migrator struct {
	DB    *sql.DB
	files []File
}

// Open connects through lib/pq and returns a migrator over the files in dir.
func Open(dsn string, fsys fs.FS, dir string) (*Migrator, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return NewMigrator(db, fsys, dir)
}

// NewMigrator creates a new migrator
func NewMigrator(db *sql.DB, fsys fs.FS, dir string) (*Migrator, error) {
	files, err := Load(fsys, dir)
	if err != nil {
		return nil, err
	}
	return &Migrator{DB: db, files: files}, nil
}

// Load reads and orders the *.sql files in dir. File names must start with
// a unique positive integer version followed by an underscore.
func Load(fsys fs.FS, dir string) ([]File, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	seen := make(map[int]string)
	var files []File
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}

		prefix, _, ok := strings.Cut(e.Name(), "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %q: name must start with a version number", e.Name())
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %d", other, e.Name(), version)
		}
		seen[version] = e.Name()

		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(body)

		files = append(files, File{
			Version:  version,
			Name:     e.Name(),
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// InitializeSchema creates the bookkeeping table if it doesn't exist.
func (m *Migrator) InitializeSchema(ctx context.Context) error {
	_, err := m.DB.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INT PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	return err
}

// AppliedMigrations returns the recorded migrations ordered by version.
func (m *Migrator) AppliedMigrations(ctx context.Context) ([]Applied, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT version, name, checksum, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("querying schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Version, &a.Name, &a.Checksum, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Pending returns the files not yet applied. An applied file whose checksum
// changed is an error.
func (m *Migrator) Pending(ctx context.Context) ([]File, error) {
	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int]Applied, len(applied))
	for _, a := range applied {
		done[a.Version] = a
	}

	var pending []File
	for _, f := range m.files {
		a, ok := done[f.Version]
		if !ok {
			pending = append(pending, f)
			continue
		}
		if a.Checksum != f.Checksum {
			return nil, fmt.Errorf("migration %s was modified after being applied", f.Name)
		}
	}
	return pending, nil
}

// Up applies every pending migration, each in its own transaction, and
// returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.InitializeSchema(ctx); err != nil {
		return 0, fmt.Errorf("initializing schema: %w", err)
	}

	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}

	for i, f := range pending {
		if err := m.apply(ctx, f); err != nil {
			return i, err
		}
		slog.InfoContext(ctx, "applied migration", "version", f.Version, "name", f.Name)
	}
	return len(pending), nil
}

func (m *Migrator) apply(ctx context.Context, f File) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, f.SQL); err != nil {
		return fmt.Errorf("applying %s: %w", f.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
		f.Version, f.Name, f.Checksum,
	); err != nil {
		return fmt.Errorf("recording %s: %w", f.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (m *Migrator) Close() error {
	return m.DB.Close()
}

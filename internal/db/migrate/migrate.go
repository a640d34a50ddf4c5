// Package migrate applies the embedded SQL migrations in version order and
// records them in schema_migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt *time.Time
}

type Manager struct {
	db  *sql.DB
	src fs.FS
	out io.Writer
}

// Open connects through lib/pq. Migrations run outside the pgx pool so a
// schema change never competes with application connections.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func NewManager(db *sql.DB, src fs.FS) *Manager {
	return &Manager{db: db, src: src, out: os.Stdout}
}

// SetOutput redirects the progress lines Up and Down print.
func (m *Manager) SetOutput(w io.Writer) {
	m.out = w
}

func (m *Manager) Initialize(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

// LoadMigrations reads NNN_name.sql and NNN_name_down.sql pairs from the
// source.
func (m *Manager) LoadMigrations() ([]Migration, error) {
	return Load(m.src)
}

func Load(src fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(src, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	migrations := make(map[int]Migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		base := strings.TrimSuffix(name, ".sql")
		down := strings.HasSuffix(base, "_down")
		base = strings.TrimSuffix(base, "_down")

		prefix, rest, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			continue
		}

		content, err := fs.ReadFile(src, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		migration, exists := migrations[version]
		if !exists {
			migration = Migration{Version: version, Name: rest}
		} else if migration.Name != rest {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, migration.Name, rest)
		}
		if down {
			migration.DownSQL = string(content)
		} else {
			migration.UpSQL = string(content)
		}
		migrations[version] = migration
	}

	result := make([]Migration, 0, len(migrations))
	for _, mg := range migrations {
		if mg.UpSQL == "" {
			return nil, fmt.Errorf("migration %d (%s) has no up script", mg.Version, mg.Name)
		}
		result = append(result, mg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})
	return result, nil
}

func (m *Manager) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Pending returns the migrations not yet recorded as applied.
func Pending(all []Migration, applied map[int]time.Time) []Migration {
	var pending []Migration
	for _, mg := range all {
		if _, ok := applied[mg.Version]; !ok {
			pending = append(pending, mg)
		}
	}
	return pending
}

// Up applies every pending migration, each in its own transaction.
func (m *Manager) Up(ctx context.Context) error {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, migration := range Pending(migrations, applied) {
		err := m.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
				migration.Version, migration.Name); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(m.out, "Applied migration %d: %s\n", migration.Version, migration.Name)
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Manager) Down(ctx context.Context) error {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return fmt.Errorf("no migrations to roll back")
	}

	var lastVersion int
	for version := range applied {
		if version > lastVersion {
			lastVersion = version
		}
	}

	var migration *Migration
	for i := range migrations {
		if migrations[i].Version == lastVersion {
			migration = &migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %d is applied but its files are missing", lastVersion)
	}
	if migration.DownSQL == "" {
		return fmt.Errorf("migration %d (%s) has no down script", migration.Version, migration.Name)
	}

	err = m.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to roll back migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", migration.Version); err != nil {
			return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "Rolled back migration %d: %s\n", migration.Version, migration.Name)
	return nil
}

func (m *Manager) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

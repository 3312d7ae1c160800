package database

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"time"
)

var (
	// ErrNoMigrations is returned by MigrateDown when nothing has been applied.
	ErrNoMigrations = errors.New("no applied migrations")

	// ErrMigrationModified means an applied migration's up file no longer
	// matches the checksum recorded when it ran.
	ErrMigrationModified = errors.New("applied migration was modified")
)

// migrationSource is the filesystem migrations are read from, rooted at
// the directory holding the *.sql files.
var migrationSource fs.FS

// SetMigrations installs the migration files. The migrations package calls
// it from init so the schema is embedded in every binary that imports it.
func SetMigrations(fsys fs.FS) {
	migrationSource = fsys
}

// migrationFile matches YYYYMMDD_HHMMSS[_description].{up,down}.sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})(?:_(.+))?\.(up|down)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

func (m Migration) checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// Migrate applies pending migrations oldest first, one transaction each.
// A failure leaves earlier migrations committed; the next run resumes at
// the one that failed.
func (db *DB) Migrate(ctx context.Context) error {
	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	known, err := readMigrations(migrationSource)
	if err != nil {
		return err
	}
	if err := verifyChecksums(applied, known); err != nil {
		return err
	}

	for _, m := range pending {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)",
				m.Version, m.Name, m.checksum(), time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the newest applied migration. Used by tests and
// during development.
func (db *DB) MigrateDown(ctx context.Context) error {
	applied, _, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return ErrNoMigrations
	}
	newest := applied[len(applied)-1]

	known, err := readMigrations(migrationSource)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(known, func(m Migration) bool { return m.Version == newest.Version })
	switch {
	case i < 0:
		return fmt.Errorf("migration %s: no file for applied version", newest.Version)
	case known[i].DownSQL == "":
		return fmt.Errorf("migration %s: no down file", newest.Version)
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, known[i].DownSQL); err != nil {
			return fmt.Errorf("migration %s down: %w", newest.Version, err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", newest.Version)
		return err
	})
}

// MigrationStatus returns applied migrations and those still to run, both
// oldest first.
func (db *DB) MigrationStatus(ctx context.Context) (applied []MigrationRecord, pending []Migration, err error) {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		checksum   TEXT NOT NULL DEFAULT '',
		applied_at TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	if applied, err = db.appliedMigrations(ctx); err != nil {
		return nil, nil, err
	}
	known, err := readMigrations(migrationSource)
	if err != nil {
		return nil, nil, err
	}

	for _, m := range known {
		done := slices.ContainsFunc(applied, func(r MigrationRecord) bool { return r.Version == m.Version })
		if !done {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT version, name, checksum, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var (
			r     MigrationRecord
			stamp string
		)
		if err := rows.Scan(&r.Version, &r.Name, &r.Checksum, &stamp); err != nil {
			return nil, fmt.Errorf("reading schema_migrations: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, stamp) //nolint:errcheck // written by Migrate
		out = append(out, r)
	}
	return out, rows.Err()
}

func verifyChecksums(applied []MigrationRecord, known []Migration) error {
	for _, r := range applied {
		if r.Checksum == "" {
			continue
		}
		i := slices.IndexFunc(known, func(m Migration) bool { return m.Version == r.Version })
		if i >= 0 && known[i].checksum() != r.Checksum {
			return fmt.Errorf("%w: %s_%s", ErrMigrationModified, r.Version, r.Name)
		}
	}
	return nil
}

// readMigrations pairs the up and down files found at the root of fsys.
// A nil fsys yields no migrations.
func readMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := map[string]*Migration{}
	for _, file := range names {
		version, name, up, ok := parseMigrationFilename(file)
		if !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", file, err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.UpSQL = string(body)
		} else {
			m.DownSQL = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			return nil, fmt.Errorf("migration %s: down file without an up file", m.Version)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// parseMigrationFilename splits "20260301_090000_initial_schema.up.sql" into
// its version, description and direction. Without a description the
// version doubles as the name.
func parseMigrationFilename(filename string) (version, name string, up, ok bool) {
	m := migrationFile.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false, false
	}
	name = m[2]
	if name == "" {
		name = m[1]
	}
	return m[1], name, m[3] == "up", true
}

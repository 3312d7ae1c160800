package database

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "registry.db")

	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.ExecContext(t.Context(), "CREATE TABLE scratch (id INTEGER)"); err != nil {
		t.Fatalf("writing to fresh database: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("database file missing: %v", err)
	}
	if mode := info.Mode().Perm(); mode != fileMode {
		t.Errorf("file mode = %o, want %o", mode, fileMode)
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(Config{}); !errors.Is(err, ErrPathRequired) {
		t.Errorf("Open() error = %v, want ErrPathRequired", err)
	}
}

func TestConfig_DSN(t *testing.T) {
	dsn := Config{Path: "/data/registry.db", WALMode: true, BusyTimeout: 5}.DSN()

	for _, want := range []string{
		"file:/data/registry.db?",
		"_busy_timeout=5000",
		"_foreign_keys=on",
		"_txlock=immediate",
		"_journal_mode=WAL",
		"_synchronous=NORMAL",
	} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN() = %q, missing %q", dsn, want)
		}
	}

	if strings.Contains(Config{Path: "x.db"}.DSN(), "_journal_mode") {
		t.Error("DSN() enabled WAL although WALMode is false")
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}

	db.Close() //nolint:errcheck // closing to force a failure
	if err := db.HealthCheck(t.Context()); err == nil {
		t.Error("HealthCheck() on a closed handle = nil, want error")
	}
}

func TestClose_Unopened(t *testing.T) {
	var db DB
	if err := db.Close(); err != nil {
		t.Errorf("Close() on zero DB = %v, want nil", err)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	_, err := db.ExecContext(ctx, `
		CREATE TABLE owners (id INTEGER PRIMARY KEY);
		CREATE TABLE owned (id INTEGER PRIMARY KEY, owner_id INTEGER NOT NULL REFERENCES owners(id) ON DELETE CASCADE);
	`)
	if err != nil {
		t.Fatalf("creating tables: %v", err)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO owned (owner_id) VALUES (99)"); err == nil {
		t.Error("insert with dangling foreign key succeeded")
	}
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	if _, err := db.ExecContext(ctx, "CREATE TABLE tx_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	t.Run("commits on success", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES ('committed')")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
		if n := countRows(t, db, "committed"); n != 1 {
			t.Errorf("committed rows = %d, want 1", n)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES ('rolled_back')"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx() error = %v, want %v", err, boom)
		}
		if n := countRows(t, db, "rolled_back"); n != 0 {
			t.Errorf("rolled back rows = %d, want 0", n)
		}
	})
}

func TestStats(t *testing.T) {
	db := openTestDB(t)

	if stats := db.Stats(); stats.MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %v, want 1 (SQLite single writer)", stats.MaxOpenConnections)
	}
}

func countRows(t *testing.T, db *DB, value string) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM tx_test WHERE value = ?", value).Scan(&n); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	return n
}

// openTestDB creates a temporary database that is closed when the test ends.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

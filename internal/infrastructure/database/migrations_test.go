package database

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"
)

func withMigrations(t *testing.T, fsys fs.FS) {
	t.Helper()
	orig := migrationSource
	SetMigrations(fsys)
	t.Cleanup(func() { SetMigrations(orig) })
}

var testMigrations = fstest.MapFS{
	"20260101_000000_create_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);")},
	"20260101_000000_create_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
	"20260102_000000_add_gadgets.up.sql":      {Data: []byte("CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")},
	"README.md":                               {Data: []byte("not a migration")},
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(t.Context(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("checking table %s: %v", name, err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	withMigrations(t, testMigrations)
	db := openTestDB(t)

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "widgets") || !tableExists(t, db, "gadgets") {
		t.Fatal("Migrate() did not create both tables")
	}

	// Idempotent.
	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	applied, pending, err := db.MigrationStatus(t.Context())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d, want 2 and 0", len(applied), len(pending))
	}
	if applied[0].Version != "20260101_000000" {
		t.Errorf("applied[0].Version = %q, want oldest first", applied[0].Version)
	}
	if applied[0].Name != "create_widgets" || applied[0].Checksum == "" {
		t.Errorf("applied[0] = %+v, want name and checksum recorded", applied[0])
	}
}

func TestMigrate_DetectsModifiedMigration(t *testing.T) {
	withMigrations(t, fstest.MapFS{
		"20260101_000000_create_widgets.up.sql": {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);")},
	})
	db := openTestDB(t)

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	withMigrations(t, fstest.MapFS{
		"20260101_000000_create_widgets.up.sql": {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT);")},
	})
	if err := db.Migrate(t.Context()); !errors.Is(err, ErrMigrationModified) {
		t.Errorf("Migrate() error = %v, want ErrMigrationModified", err)
	}
}

func TestMigrate_FailureStopsAtBrokenMigration(t *testing.T) {
	withMigrations(t, fstest.MapFS{
		"20260101_000000_good.up.sql":   {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE nonsense (;")},
	})
	db := openTestDB(t)

	if err := db.Migrate(t.Context()); err == nil {
		t.Fatal("Migrate() expected error for broken SQL")
	}
	if !tableExists(t, db, "good") {
		t.Error("earlier migration was not kept")
	}

	applied, pending, err := db.MigrationStatus(t.Context())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied = %d, pending = %d, want 1 and 1", len(applied), len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	withMigrations(t, fstest.MapFS{
		"20260101_000000_create_widgets.up.sql":   testMigrations["20260101_000000_create_widgets.up.sql"],
		"20260101_000000_create_widgets.down.sql": testMigrations["20260101_000000_create_widgets.down.sql"],
	})
	db := openTestDB(t)

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(t.Context()); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "widgets") {
		t.Error("MigrateDown() left the table in place")
	}
	if err := db.MigrateDown(t.Context()); !errors.Is(err, ErrNoMigrations) {
		t.Errorf("MigrateDown() on empty history error = %v, want ErrNoMigrations", err)
	}
}

func TestMigrateDown_MissingDownSQL(t *testing.T) {
	withMigrations(t, fstest.MapFS{
		"20260102_000000_add_gadgets.up.sql": testMigrations["20260102_000000_add_gadgets.up.sql"],
	})
	db := openTestDB(t)

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(t.Context()); err == nil {
		t.Error("MigrateDown() expected error without down SQL")
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	withMigrations(t, nil)
	db := openTestDB(t)

	if err := db.Migrate(t.Context()); err != nil {
		t.Errorf("Migrate() with no migrations error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_090000_initial_schema.up.sql", "20260301_090000", "initial_schema", true, true},
		{"20260301_090000_initial_schema.down.sql", "20260301_090000", "initial_schema", false, true},
		{"20260301_090000.up.sql", "20260301_090000", "20260301_090000", true, true},
		{"20260301_090000_initial_schema.sql", "", "", false, false},
		{"initial_schema.up.sql", "", "", false, false},
		{"20260301_090000_initial_schema.up.txt", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("parseMigrationFilename() = (%q, %q, %v), want (%q, %q, %v)",
					version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}

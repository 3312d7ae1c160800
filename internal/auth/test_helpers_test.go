package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/student-registry/internal/infrastructure/database"
	_ "github.com/nerrad567/student-registry/migrations"
)

// testDB opens a migrated SQLite database in a temp directory, configured as
// in production (single connection, immediate transactions, foreign keys).
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "registry.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

// mustHash hashes password or fails the test.
func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return hash
}

// seedStaff inserts a staff member with an explicit role, bypassing the
// registration rules.
func seedStaff(t *testing.T, repo *SQLiteStaffRepository, email string, role Permission) *Staff {
	t.Helper()
	st := &Staff{Username: email, Email: email, PasswordHash: mustHash(t, "password123")}
	err := repo.Register(context.Background(), st, func(int) (Permission, error) { return role, nil })
	if err != nil {
		t.Fatalf("seeding %s: %v", email, err)
	}
	return st
}

// fakeFinder is an in-memory StaffFinder.
type fakeFinder struct {
	staff map[int64]*Staff
	err   error
}

func (f *fakeFinder) GetByID(_ context.Context, id int64) (*Staff, error) {
	if f.err != nil {
		return nil, f.err
	}
	st, ok := f.staff[id]
	if !ok {
		return nil, ErrStaffNotFound
	}
	return st, nil
}

package student

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/student-registry/internal/auth"
	"github.com/nerrad567/student-registry/internal/infrastructure/database"
	_ "github.com/nerrad567/student-registry/migrations"
)

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

// addStaff inserts a staff member with role and returns its id. The hash is
// a placeholder; these tests never log in.
func addStaff(t *testing.T, repo *auth.SQLiteStaffRepository, email string, role auth.Permission) int64 {
	t.Helper()
	st := &auth.Staff{Username: email, Email: email, PasswordHash: "unused"}
	if err := repo.Register(context.Background(), st, func(int) (auth.Permission, error) { return role, nil }); err != nil {
		t.Fatalf("adding staff %s: %v", email, err)
	}
	return st.ID
}

func sampleInput(first string) Input {
	return Input{
		FirstName:   first,
		LastName:    "Lovelace",
		DateOfBirth: "2011-12-10",
		Email:       first + "@school.example",
		Gender:      GenderFemale,
	}
}

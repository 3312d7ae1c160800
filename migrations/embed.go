// Package migrations holds the registry schema. Importing it, usually for
// side effects, makes the files available to database.Migrate.
package migrations

import (
	"embed"

	"github.com/nerrad567/student-registry/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.SetMigrations(files)
}

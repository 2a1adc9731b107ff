// Package migrations compiles the SQL schema files into the binary so
// the daemon needs nothing on disk to migrate.
package migrations

import (
	"embed"

	"github.com/quiethouse/avrbridge/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}

package login

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// DialectMigrations returns the migrations for one dialect directory,
// sqlite or postgres
func DialectMigrations(dialect string) (fs.FS, error) {
	return fs.Sub(migrationsFS, "data/sql/migrations/"+dialect)
}

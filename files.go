package users

import (
	"embed"
)

// MigrationsRoot is the directory holding one migration set per dialect
const MigrationsRoot = "data/sql/migrations"

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// Package migrations embeds the SQL migration files into the binary,
// one directory per database dialect (sqlite3, mysql).
package migrations

import (
	"embed"

	"github.com/nerrad567/logix-uplink/internal/infrastructure/database"
)

//go:embed sqlite3/*.sql mysql/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}

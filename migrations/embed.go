// Package migrations embeds the SQL schema of the W215 bridge into the binary
// and registers it with the database package on import.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}

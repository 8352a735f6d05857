// Package migrations embeds the journal schema into the binary.
//
// Importing this package registers the files with the database package,
// so the daemon can migrate without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/fancontrol-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}

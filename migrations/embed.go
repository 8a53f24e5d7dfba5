// Package migrations holds the history database schema.
//
// Importing it registers the embedded SQL files with the database package,
// so the service binary carries its schema.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files)
}

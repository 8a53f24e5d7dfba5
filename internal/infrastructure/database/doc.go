// Package database opens the bridge's SQLite history database and keeps its
// schema current.
//
// The database holds sensor readings, characteristic changes and the
// change-request audit log. Accessory state is never restored from it.
//
// Schema files live in the top-level migrations package, which registers
// them on import:
//
//	import _ "github.com/nerrad567/gray-logic-irbridge/migrations"
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations only add: new columns are nullable or carry a default, so an
// older binary can still read a newer file.
package database

package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

// useMigrations registers fsys for the duration of the test.
func useMigrations(t *testing.T, fsys fstest.MapFS) {
	t.Helper()
	prev := registeredMigrations()
	RegisterMigrations(fsys)
	t.Cleanup(func() { RegisterMigrations(prev) })
}

func sqlFile(s string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(s)}
}

var readingsMigrations = fstest.MapFS{
	"20260301_120000_readings.up.sql":   sqlFile("CREATE TABLE readings (accessory TEXT NOT NULL, value REAL NOT NULL) STRICT;"),
	"20260301_120000_readings.down.sql": sqlFile("DROP TABLE readings;"),
	"20260302_090000_source.up.sql":     sqlFile("ALTER TABLE readings ADD COLUMN source TEXT;"),
	"README.md":                         sqlFile("not a migration"),
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	return n == 1
}

func TestMigrate_AppliesInOrderOnce(t *testing.T) {
	useMigrations(t, readingsMigrations)
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO readings (accessory, value, source) VALUES ('Lounge', 21.5, 'w1')"); err != nil {
		t.Fatalf("insert after migrate: %v", err)
	}

	applied, pending, err := db.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(applied) != 2 || applied[0] != "20260301_120000" || applied[1] != "20260302_090000" {
		t.Errorf("applied = %v", applied)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %v, want none", pending)
	}
}

func TestMigrate_FailureKeepsEarlierSteps(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260301_120000_ok.up.sql":     sqlFile("CREATE TABLE ok (id INTEGER);"),
		"20260301_130000_broken.up.sql": sqlFile("CREATE TABLE broken (;"),
	})
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() should fail on a broken script")
	}
	if !tableExists(t, db, "ok") {
		t.Error("first migration should stay applied")
	}

	applied, pending, err := db.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 || pending[0].Name != "broken" {
		t.Errorf("applied = %v, pending = %+v", applied, pending)
	}
}

func TestMigrate_NoneRegistered(t *testing.T) {
	prev := registeredMigrations()
	RegisterMigrations(nil)
	t.Cleanup(func() { RegisterMigrations(prev) })

	db := openTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "schema_migrations") {
		t.Error("schema_migrations should exist even with no migrations")
	}
}

func TestRollback(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260301_120000_readings.up.sql":   sqlFile("CREATE TABLE readings (id INTEGER);"),
		"20260301_120000_readings.down.sql": sqlFile("DROP TABLE readings;"),
		"20260302_090000_changes.up.sql":    sqlFile("CREATE TABLE changes (id INTEGER);"),
	})
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() on empty database error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// The latest step has no down script.
	if err := db.Rollback(ctx); !errors.Is(err, ErrNoDownMigration) {
		t.Fatalf("Rollback() error = %v, want ErrNoDownMigration", err)
	}

	// Forget the latest step so the first becomes the latest.
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = '20260302_090000'"); err != nil {
		t.Fatalf("delete version: %v", err)
	}
	if err := db.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if tableExists(t, db, "readings") {
		t.Error("readings should be dropped")
	}
	applied, _, err := db.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %v, want none", applied)
	}
}

func TestLoadMigrations_DownWithoutUp(t *testing.T) {
	_, err := loadMigrations(fstest.MapFS{
		"20260301_120000_orphan.down.sql": sqlFile("DROP TABLE x;"),
	})
	if err == nil {
		t.Fatal("loadMigrations() should reject a down script without an up script")
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		file    string
		version string
		name    string
		up      bool
		ok      bool
	}{
		{"20260301_120000_history.up.sql", "20260301_120000", "history", true, true},
		{"20260301_120100_audit_log.down.sql", "20260301_120100", "audit_log", false, true},
		{"20260301_120000.up.sql", "20260301_120000", "", true, true},
		{"20260301_120000_history.sql", "", "", false, false},
		{"2026_120000_history.up.sql", "", "", false, false},
		{"history.up.sql", "", "", false, false},
		{"embed.go", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, ok := parseMigrationName(tt.file)
			if version != tt.version || name != tt.name || up != tt.up || ok != tt.ok {
				t.Errorf("parseMigrationName(%q) = (%q, %q, %v, %v), want (%q, %q, %v, %v)",
					tt.file, version, name, up, ok, tt.version, tt.name, tt.up, tt.ok)
			}
		})
	}
}

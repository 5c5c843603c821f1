// Package db tests for connection management and migrations.
package db

import (
	"testing"
)

// openTestDB opens a migrated database in a temp dir.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := NewMigrator(database.DB).Up(); err != nil {
		t.Fatalf("Up() error: %v", err)
	}
	return database
}

// TestOpen verifies the database opens with WAL and foreign keys enabled.
func TestOpen(t *testing.T) {
	database := openTestDB(t)

	var mode string
	if err := database.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode query error: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys query error: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

// TestMigrator_Up verifies all migrations apply and the version advances.
func TestMigrator_Up(t *testing.T) {
	database := openTestDB(t)

	m := NewMigrator(database.DB)
	version, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion() error: %v", err)
	}
	if version != migrations[len(migrations)-1].Version {
		t.Errorf("version = %d, want %d", version, migrations[len(migrations)-1].Version)
	}

	// Both tables plus the V2 column must exist.
	for _, q := range []string{
		"SELECT COUNT(*) FROM notes",
		"SELECT COUNT(*) FROM mutation_queue",
		"SELECT is_archived FROM notes LIMIT 1",
	} {
		if _, err := database.Exec(q); err != nil {
			t.Errorf("query %q failed after migration: %v", q, err)
		}
	}
}

// TestMigrator_Up_idempotent verifies a second Up() is a no-op.
func TestMigrator_Up_idempotent(t *testing.T) {
	database := openTestDB(t)

	m := NewMigrator(database.DB)
	if err := m.Up(); err != nil {
		t.Fatalf("second Up() error: %v", err)
	}

	var count int
	if err := database.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count query error: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("schema_migrations rows = %d, want %d", count, len(migrations))
	}
}

// TestMigrator_preservesData verifies upgrading from V1 keeps existing rows.
func TestMigrator_preservesData(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer database.Close()

	m := NewMigrator(database.DB)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := m.apply(migrations[0]); err != nil {
		t.Fatalf("apply(V1) error: %v", err)
	}

	if _, err := database.Exec(
		"INSERT INTO notes (id, created_at, updated_at) VALUES ('n1', 1, 1)"); err != nil {
		t.Fatalf("insert error: %v", err)
	}

	if err := m.Up(); err != nil {
		t.Fatalf("Up() error: %v", err)
	}

	var archived bool
	if err := database.QueryRow("SELECT is_archived FROM notes WHERE id = 'n1'").Scan(&archived); err != nil {
		t.Fatalf("row lost across migration: %v", err)
	}
	if archived {
		t.Error("new column should default to false for existing rows")
	}
}

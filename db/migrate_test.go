package db

import (
	"path/filepath"
	"testing"
)

func tableExists(t *testing.T, path, table string) bool {
	t.Helper()
	conn, err := NewSQLiteConnectionWithDefaults(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	var name string
	err = conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	return err == nil && name == table
}

func TestMigrateUpFromPath_CreatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")

	if err := MigrateUpFromPath(path); err != nil {
		t.Fatalf("MigrateUpFromPath() error = %v", err)
	}
	for _, table := range []string{"batch_runs", "prompt_attempts", "prompt_results"} {
		if !tableExists(t, path, table) {
			t.Errorf("table %s missing after migration", table)
		}
	}

	version, dirty, err := MigrationVersionFromPath(path)
	if err != nil {
		t.Fatalf("MigrationVersionFromPath() error = %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("version = %d dirty = %v, want 2 false", version, dirty)
	}
}

func TestMigrateUpFromPath_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	for i := 0; i < 3; i++ {
		if err := MigrateUpFromPath(path); err != nil {
			t.Fatalf("run %d: MigrateUpFromPath() error = %v", i, err)
		}
	}
}

func TestMigrateDownFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	if err := MigrateUpFromPath(path); err != nil {
		t.Fatalf("MigrateUpFromPath() error = %v", err)
	}

	if err := MigrateDownFromPath(path, 1); err != nil {
		t.Fatalf("MigrateDownFromPath(1) error = %v", err)
	}
	if tableExists(t, path, "prompt_results") {
		t.Error("prompt_results should be dropped after one step down")
	}
	if !tableExists(t, path, "batch_runs") {
		t.Error("batch_runs should survive one step down")
	}

	if err := MigrateDownFromPath(path, -1); err != nil {
		t.Fatalf("MigrateDownFromPath(-1) error = %v", err)
	}
	if tableExists(t, path, "batch_runs") {
		t.Error("batch_runs should be dropped after full rollback")
	}
}

func TestMigrationVersionFromPath_Fresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	version, dirty, err := MigrationVersionFromPath(path)
	if err != nil {
		t.Fatalf("MigrationVersionFromPath() error = %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("version = %d dirty = %v, want 0 false", version, dirty)
	}
}

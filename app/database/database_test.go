package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func TestNewConnection_CreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := NewConnection(dbPath)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Expected database file to exist: %v", err)
	}
}

func TestNewConnection_QuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	// Not a SQLite file at all
	if err := os.WriteFile(dbPath, []byte("this is not a database"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	db, err := NewConnection(dbPath)
	if err != nil {
		t.Fatalf("Expected fresh store after corruption, got: %v", err)
	}
	defer db.Close()

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Fresh store must accept migrations: %v", err)
	}

	// The unreadable file was moved aside, not deleted
	matches, err := filepath.Glob(dbPath + ".corrupt-*")
	if err != nil || len(matches) != 1 {
		t.Errorf("Expected one quarantined file, got %v (err: %v)", matches, err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	if dirty {
		t.Error("Expected clean migration state")
	}
	if version == 0 {
		t.Error("Expected non-zero schema version")
	}
}

func TestRouteRepository_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewRouteRepository(db)

	if err := repo.UpsertRoute("news", -100, -200, true); err != nil {
		t.Fatalf("UpsertRoute failed: %v", err)
	}

	route, err := repo.GetRoute("news")
	if err != nil {
		t.Fatalf("GetRoute failed: %v", err)
	}
	if route == nil {
		t.Fatal("Expected route, got nil")
	}
	if route.SourceChatID != -100 || route.TargetChatID != -200 || !route.Enabled {
		t.Errorf("Unexpected route: %+v", route)
	}
	if route.LastTickAt != nil {
		t.Error("Expected no last tick on a fresh route")
	}

	// Second upsert updates in place
	if err := repo.UpsertRoute("news", -100, -300, false); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	route, err = repo.GetRoute("news")
	if err != nil {
		t.Fatalf("GetRoute failed: %v", err)
	}
	if route.TargetChatID != -300 || route.Enabled {
		t.Errorf("Expected updated route, got %+v", route)
	}

	count, err := repo.GetRouteCount()
	if err != nil {
		t.Fatalf("GetRouteCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 route, got %d", count)
	}
}

func TestRouteRepository_GetMissingRoute(t *testing.T) {
	db := newTestDB(t)
	repo := NewRouteRepository(db)

	route, err := repo.GetRoute("nope")
	if err != nil {
		t.Fatalf("GetRoute failed: %v", err)
	}
	if route != nil {
		t.Errorf("Expected nil for missing route, got %+v", route)
	}
}

func TestRouteRepository_UpdateLastTick(t *testing.T) {
	db := newTestDB(t)
	repo := NewRouteRepository(db)

	if err := repo.UpsertRoute("news", -100, -200, true); err != nil {
		t.Fatalf("UpsertRoute failed: %v", err)
	}

	tickedAt := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	if err := repo.UpdateLastTick("news", tickedAt); err != nil {
		t.Fatalf("UpdateLastTick failed: %v", err)
	}

	route, err := repo.GetRoute("news")
	if err != nil {
		t.Fatalf("GetRoute failed: %v", err)
	}
	if route.LastTickAt == nil || !route.LastTickAt.Equal(tickedAt) {
		t.Errorf("Expected last tick %v, got %v", tickedAt, route.LastTickAt)
	}
}

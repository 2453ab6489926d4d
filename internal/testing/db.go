// Package testing provides testing utilities and helpers for the aqicast project.
package testing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/aqicast/internal/database"
)

// NewTestDB creates an isolated SQLite database for testing with automatic schema migration.
// Returns the database instance and a cleanup function that closes the connection.
// The cleanup function is idempotent and can be called multiple times safely.
//
// Supported schema names:
//   - "aqicast" - applies aqicast_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// A file per test keeps tests isolated; t.TempDir removes it afterwards
	path := filepath.Join(t.TempDir(), "test_"+name+".db")

	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileCache,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	}
}

// NewMemoryDB creates a private in-memory database with the schema applied.
func NewMemoryDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    "file::memory:",
		Profile: database.ProfileCache,
		Name:    "aqicast",
	})
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// CreateTempDBFile returns a path for a file-based database that does not
// exist yet. The directory is removed when the test ends.
func CreateTempDBFile(t *testing.T, name string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", name+"_*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, name+".db")
}

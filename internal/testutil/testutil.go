package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/bizdesk/bizdesk/internal/repository/postgres"
	"github.com/bizdesk/bizdesk/migrations"
)

// NewTestDB creates an in-memory SQLite database with all migrations applied
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if _, err := postgres.RunMigrations(db, migrations.GetFS()); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { CleanupDB(db) })
	return db
}

// CleanupDB closes the test database
func CleanupDB(db *sql.DB) {
	if db != nil {
		db.Close()
	}
}

// StrPtr returns a pointer to s
func StrPtr(s string) *string {
	return &s
}

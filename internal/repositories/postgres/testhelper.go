package postgres

import (
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/lib/pq"

	"github.com/asakaida/epiguard/internal/infrastructure/config"
	"github.com/asakaida/epiguard/internal/infrastructure/database"
)

// SetupTestDB creates a test database connection and runs migrations.
// The test is skipped when no test database is configured or reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Initialize test config
	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("Skipping: test database not configured: %v", err)
	}

	// Connect to database
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("Skipping: test database unreachable: %v", err)
	}

	// Run embedded migrations
	if err := pg.RunMigrations(""); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return pg.DB
}

// CleanupTestDB closes the database connection and cleans up test data
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	// Users reference roles, so they go first
	tables := []string{"users", "roles"}
	for _, table := range tables {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}

	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}

package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/yourusername/grade-market/internal/config"
)

// TestDSNEnv names the variable holding the integration test database config path
const TestDSNEnv = "GRADE_MARKET_TEST_CONFIG"

// SetupTestDB connects to the integration database and applies migrations.
// The test is skipped when no test configuration is provided.
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	path := os.Getenv(TestDSNEnv)
	if path == "" {
		t.Skip("Integration test - requires database setup (set " + TestDSNEnv + ")")
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("failed to load test config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := Initialize(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create test database connection: %v", err)
	}

	return db
}

// TeardownTestDB truncates ledger tables and closes the connection
func TeardownTestDB(t *testing.T, db *DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.pool.Exec(ctx, `TRUNCATE bets, odds_entries, courses, users CASCADE`); err != nil {
		t.Logf("warning: failed to truncate test tables: %v", err)
	}
	db.Close()
}

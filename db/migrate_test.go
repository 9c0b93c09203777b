package db_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/moyuhunter/huntqueue/db"
)

// openMigrationTestDB opens a bare connection without running any
// migrations; the tests below drive the versioned migration path
// themselves.
func openMigrationTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// cleanDatabase drops all managed tables plus migration bookkeeping so
// each test starts from an empty schema.
func cleanDatabase(t *testing.T, ctx context.Context, database *sql.DB) {
	t.Helper()
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS session_credentials CASCADE`,
		`DROP TABLE IF EXISTS catalog_entries CASCADE`,
		`DROP TABLE IF EXISTS kv CASCADE`,
		`DROP TABLE IF EXISTS schema_migrations CASCADE`,
	} {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			t.Logf("cleanup %q: %v", stmt, err)
		}
	}
}

func tableExists(t *testing.T, ctx context.Context, database *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := database.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}

func TestRunMigrations(t *testing.T) {
	database := openMigrationTestDB(t)
	ctx := context.Background()
	cleanDatabase(t, ctx, database)

	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	for _, table := range []string{"session_credentials", "catalog_entries", "kv"} {
		if !tableExists(t, ctx, database, table) {
			t.Errorf("table %s missing after migrations", table)
		}
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		t.Fatalf("GetMigrationVersion: %v", err)
	}
	if version < 1 {
		t.Errorf("version = %d, want >= 1", version)
	}
	if dirty {
		t.Error("database reported dirty after clean migration run")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	database := openMigrationTestDB(t)
	ctx := context.Background()
	cleanDatabase(t, ctx, database)

	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("first run: %v", err)
	}
	v1, d1, err := db.GetMigrationVersion(database)
	if err != nil {
		t.Fatalf("version after first run: %v", err)
	}

	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("second run: %v", err)
	}
	v2, d2, err := db.GetMigrationVersion(database)
	if err != nil {
		t.Fatalf("version after second run: %v", err)
	}

	if v1 != v2 || d1 != d2 {
		t.Errorf("repeat run changed state: (%d,%v) -> (%d,%v)", v1, d1, v2, d2)
	}
}

func TestMigrationUpDownRoundTrip(t *testing.T) {
	database := openMigrationTestDB(t)
	ctx := context.Background()
	cleanDatabase(t, ctx, database)

	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	start, _, err := db.GetMigrationVersion(database)
	if err != nil {
		t.Fatalf("GetMigrationVersion: %v", err)
	}
	if start == 0 {
		t.Fatal("expected at least one applied migration")
	}

	// Roll everything back one step at a time.
	for i := uint(0); i < start; i++ {
		if err := db.MigrateDown(database); err != nil {
			t.Fatalf("MigrateDown step %d: %v", i+1, err)
		}
	}

	for _, table := range []string{"session_credentials", "catalog_entries", "kv"} {
		if tableExists(t, ctx, database, table) {
			t.Errorf("table %s still present after full rollback", table)
		}
	}
	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		t.Fatalf("GetMigrationVersion after rollback: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("state after rollback = (%d,%v), want (0,false)", version, dirty)
	}

	// Re-apply and make sure the schema comes back.
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("re-run after rollback: %v", err)
	}
	if !tableExists(t, ctx, database, "catalog_entries") {
		t.Error("catalog_entries missing after re-applying migrations")
	}
}

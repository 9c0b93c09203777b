package db_test

import (
	"context"
	"testing"

	"github.com/moyuhunter/huntqueue/db"
	"github.com/moyuhunter/huntqueue/match"
	"github.com/moyuhunter/huntqueue/queue"
	"github.com/moyuhunter/huntqueue/testutil"
)

func TestMigrate(t *testing.T) {
	database := testutil.SetupTestDB(t)
	// Running twice must be a no-op.
	if err := db.Migrate(context.Background(), database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.ClearCredential(ctx, database); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := db.GetCredential(ctx, database)
	if err != nil || got != "" {
		t.Fatalf("GetCredential on empty store = (%q, %v), want (\"\", nil)", got, err)
	}

	const cookie = "DedeUserID=12345; SESSDATA=abc"
	if err := db.UpsertCredential(ctx, database, cookie); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err = db.GetCredential(ctx, database)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != cookie {
		t.Errorf("GetCredential = %q, want %q", got, cookie)
	}

	if err := db.ClearCredential(ctx, database); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = db.GetCredential(ctx, database)
	if got != "" {
		t.Errorf("credential survived clear: %q", got)
	}
}

func TestCatalogCRUD(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.ClearCatalog(ctx, database); err != nil {
		t.Fatalf("clear: %v", err)
	}

	entries := []match.CatalogEntry{
		{Name: "雌火龙", Image: "https://img.example/rathian.png", Aliases: []string{"雌龙"}},
		{Name: "灭尽龙"},
	}
	for _, e := range entries {
		if err := db.PutCatalogEntry(ctx, database, e); err != nil {
			t.Fatalf("put %s: %v", e.Name, err)
		}
	}

	got, err := db.ListCatalog(ctx, database)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("list length = %d, want 2", len(got))
	}
	if got[0].Name != "雌火龙" || len(got[0].Aliases) != 1 || got[0].Aliases[0] != "雌龙" {
		t.Errorf("first entry mismatch: %+v", got[0])
	}

	// Upsert replaces in place.
	if err := db.PutCatalogEntry(ctx, database, match.CatalogEntry{Name: "灭尽龙", Image: "x"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ = db.ListCatalog(ctx, database)
	if len(got) != 2 {
		t.Fatalf("upsert duplicated a row: %d entries", len(got))
	}

	removed, err := db.RemoveCatalogEntry(ctx, database, "灭尽龙")
	if err != nil || !removed {
		t.Fatalf("remove = (%v, %v), want (true, nil)", removed, err)
	}
	removed, err = db.RemoveCatalogEntry(ctx, database, "不存在")
	if err != nil || removed {
		t.Fatalf("remove of missing entry = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestPutCatalogEntryRequiresName(t *testing.T) {
	database := testutil.SetupTestDB(t)
	if err := db.PutCatalogEntry(context.Background(), database, match.CatalogEntry{}); err == nil {
		t.Error("expected error for nameless entry")
	}
}

func TestQueueConfigRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	cfg := queue.DefaultConfig()
	cfg.MinGuardLevel = 3
	cfg.AllowJump = true
	if err := db.SaveQueueConfig(ctx, database, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := db.LoadQueueConfig(ctx, database)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != cfg {
		t.Errorf("LoadQueueConfig = %+v, want %+v", got, cfg)
	}
}

func TestQueueConfigBadValueFallsBack(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if _, err := database.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES('queue_config','{not json',NOW())
		 ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := db.LoadQueueConfig(ctx, database)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != queue.DefaultConfig() {
		t.Errorf("corrupted config should yield defaults, got %+v", got)
	}
}

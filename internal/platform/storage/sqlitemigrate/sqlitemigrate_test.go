package sqlitemigrate

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func TestApplyMigrationsRecordsApplied(t *testing.T) {
	db := newTestDB(t)

	fsys := migrationFS(map[string]string{
		"0001_users.sql": "-- +migrate Up\nCREATE TABLE users(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE users;",
	})
	if err := ApplyMigrations(db, fsys, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if got := countRows(t, db, "schema_migrations"); got != 1 {
		t.Fatalf("ledger rows = %d, want 1", got)
	}
	if !tableExists(t, db, "users") {
		t.Fatal("expected migrated table to exist")
	}
	if tableExists(t, db, "nonexistent") {
		t.Fatal("tableExists must not report missing tables")
	}
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	db := newTestDB(t)

	fsys := migrationFS(map[string]string{
		"0001_users.sql": "-- +migrate Up\nCREATE TABLE users(id TEXT PRIMARY KEY);",
	})
	if err := ApplyMigrations(db, fsys, ""); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := ApplyMigrations(db, fsys, ""); err != nil {
		t.Fatalf("second apply must be a no-op: %v", err)
	}

	if got := countRows(t, db, "schema_migrations"); got != 1 {
		t.Fatalf("ledger rows = %d, want 1 after replay", got)
	}
}

func TestApplyMigrationsFailedMigrationStaysUnrecorded(t *testing.T) {
	db := newTestDB(t)

	bad := migrationFS(map[string]string{
		"0001_users.sql": "-- +migrate Up\nCREAT TABLE users(id TEXT);",
	})
	if err := ApplyMigrations(db, bad, ""); err == nil {
		t.Fatal("expected broken migration to fail")
	}
	if got := countRows(t, db, "schema_migrations"); got != 0 {
		t.Fatalf("ledger rows = %d, want 0 after failure", got)
	}

	fixed := migrationFS(map[string]string{
		"0001_users.sql": "-- +migrate Up\nCREATE TABLE users(id TEXT PRIMARY KEY);",
	})
	if err := ApplyMigrations(db, fixed, ""); err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}
	if got := countRows(t, db, "schema_migrations"); got != 1 {
		t.Fatalf("ledger rows = %d, want 1 after fix", got)
	}
}

func TestApplyMigrationsLedgerKeyCarriesRoot(t *testing.T) {
	db := newTestDB(t)

	fsys := migrationFS(map[string]string{
		"migrations/0001_cards.sql": "-- +migrate Up\nCREATE TABLE cards(id TEXT PRIMARY KEY);",
	})
	if err := ApplyMigrations(db, fsys, "migrations"); err != nil {
		t.Fatalf("apply migrations with root: %v", err)
	}

	var key string
	if err := db.QueryRow("SELECT name FROM schema_migrations LIMIT 1").Scan(&key); err != nil {
		t.Fatalf("read ledger key: %v", err)
	}
	if key != "migrations/0001_cards.sql" {
		t.Fatalf("ledger key = %q, want migrations/0001_cards.sql", key)
	}
	if !tableExists(t, db, "cards") {
		t.Fatal("expected migrated table under root")
	}
}

func TestApplyMigrationsSkipsDownSection(t *testing.T) {
	db := newTestDB(t)

	fsys := migrationFS(map[string]string{
		"0001_users.sql": "-- +migrate Up\nCREATE TABLE users(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE users;",
	})
	if err := ApplyMigrations(db, fsys, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if !tableExists(t, db, "users") {
		t.Fatal("down section must not run during apply")
	}
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int64 {
	t.Helper()
	var count int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		t.Fatalf("count %s rows: %v", table, err)
	}
	return count
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		t.Fatalf("check table %s: %v", table, err)
	}
	return name == table
}

package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateSQLMigrationSortsAfterNewest(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "20300101000000_create_materials.sql")
	if err := os.WriteFile(existing, []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	path, err := createSQLMigration(dir, "Widen stock scale", time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("createSQLMigration: %v", err)
	}
	if got := filepath.Base(path); got != "20300101000001_widen_stock_scale.sql" {
		t.Fatalf("unexpected filename %s", got)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "-- revert widen stock scale") {
		t.Fatalf("unexpected template:\n%s", body)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestCreateSQLMigrationUsesClock(t *testing.T) {
	dir := t.TempDir()
	path, err := createSQLMigration(dir, "add reorder alerts", time.Date(2026, 10, 16, 8, 30, 5, 0, time.FixedZone("PHT", 8*3600)))
	if err != nil {
		t.Fatalf("createSQLMigration: %v", err)
	}
	if got := filepath.Base(path); got != "20261016003005_add_reorder_alerts.sql" {
		t.Fatalf("unexpected filename %s", got)
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := createSQLMigration(t.TempDir(), " !! ", time.Now()); err == nil {
		t.Fatal("expected error for a name without letters or digits")
	}
	if _, err := createSQLMigration("", "x", time.Now()); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

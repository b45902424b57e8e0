package db

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

const migrationsDir = "../../migrations"

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestMigrationFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0003_dir.up.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := MigrationFiles(dir, ".up.sql")
	if err != nil {
		t.Fatalf("MigrationFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 up files, got %v", files)
	}
	if filepath.Base(files[0]) != "0001_a.up.sql" || filepath.Base(files[1]) != "0002_b.up.sql" {
		t.Errorf("unexpected order: %v", files)
	}
}

func TestInitMigrationDeclaresGroupConstraints(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join(migrationsDir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	sql := string(raw)
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS representation_groups",
		"represents_role_id BIGINT REFERENCES roles(id) ON DELETE SET NULL",
		"idx_roles_one_primary_per_group",
		"WHERE group_kind = 'primary'",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("init migration missing %q", want)
		}
	}
}

func TestMigrateRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("LPMS_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("LPMS_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	applied, err := Migrate(ctx, pool, migrationsDir)
	if err != nil {
		t.Fatalf("migrate (pass 1): %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected at least one migration to be applied")
	}

	again, err := Migrate(ctx, pool, migrationsDir)
	if err != nil {
		t.Fatalf("migrate (pass 2): %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second migrate should be a no-op, applied %v", again)
	}

	if err := Rollback(ctx, pool, migrationsDir); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := Migrate(ctx, pool, migrationsDir); err != nil {
		t.Fatalf("migrate after rollback: %v", err)
	}
}

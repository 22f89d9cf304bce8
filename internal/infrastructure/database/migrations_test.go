package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20261001_090000_create_attempts.up.sql":   {Data: []byte("CREATE TABLE test_attempts (id TEXT PRIMARY KEY);")},
		"20261001_090000_create_attempts.down.sql": {Data: []byte("DROP TABLE test_attempts;")},
		"20261002_120000_add_state.up.sql":         {Data: []byte("ALTER TABLE test_attempts ADD COLUMN state TEXT;")},
		"README.md":                                {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query error: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_attempts") {
		t.Fatal("table test_attempts not created")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO test_attempts (id, state) VALUES ('a', 'locked')"); err != nil {
		t.Errorf("second migration not applied: %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2 and 0", len(applied), len(pending))
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureKeepsEarlierSteps(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := testMigrations()
	fsys["20261002_120000_add_state.up.sql"] = &fstest.MapFile{Data: []byte("ALTER TABLE nope ADD COLUMN x TEXT;")}
	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() with broken migration should fail")
	}
	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1 and 1", len(applied), len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := testMigrations()
	delete(fsys, "20261002_120000_add_state.up.sql")
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_attempts") {
		t.Error("table test_attempts should have been dropped")
	}
	applied, _, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d after rollback, want 0", len(applied))
	}

	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatal(err)
	}
	if err := db.MigrateDown(ctx, testMigrations()); err == nil {
		t.Error("MigrateDown() of a migration without down SQL should fail")
	}
}

func TestMigrate_NilFS(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate(nil) error = %v", err)
	}
}

func TestLoadMigrations(t *testing.T) {
	got, err := LoadMigrations(testMigrations())
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Version != "20261001_090000" || got[0].Name != "create_attempts" || got[0].DownSQL == "" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Name != "add_state" || got[1].DownSQL != "" {
		t.Errorf("second = %+v", got[1])
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"20261001_090000_tuning_journal.up.sql", "20261001_090000", true, true},
		{"20261001_090000_tuning_journal.down.sql", "20261001_090000", false, true},
		{"readme.txt", "", false, false},
		{"20261001_090000_tuning_journal.sql", "", false, false},
		{"invalid.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk || version != tt.wantVersion || isUp != tt.wantIsUp {
				t.Errorf("parseMigrationFilename(%q) = %q, %v, %v; want %q, %v, %v",
					tt.filename, version, isUp, ok, tt.wantVersion, tt.wantIsUp, tt.wantOk)
			}
		})
	}
}

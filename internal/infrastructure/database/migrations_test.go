package database

import (
	"context"
	"testing"
	"testing/fstest"
)

// withMigrations swaps MigrationsFS for the duration of a test.
func withMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()
	prevFS, prevDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = files, "."
	t.Cleanup(func() { MigrationsFS, MigrationsDir = prevFS, prevDir })
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_120000_w215_registry.up.sql", "20260301_120000", "w215_registry", true, true},
		{"20260301_120000_w215_registry.down.sql", "20260301_120000", "w215_registry", false, true},
		{"20260302_090000_state_history.up.sql", "20260302_090000", "state_history", true, true},
		{"README.md", "", "", false, false},
		{"20260301_120000_missing_direction.sql", "", "", false, false},
		{"nounderscore.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("parseMigrationFilename(%q) ok = %v, want %v", tt.filename, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || isUp != tt.wantUp {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.filename, version, name, isUp, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}

func TestMigrate(t *testing.T) {
	withMigrations(t, fstest.MapFS{
		"20260101_000000_plugs.up.sql":      {Data: []byte("CREATE TABLE plugs (id TEXT PRIMARY KEY);")},
		"20260101_000000_plugs.down.sql":    {Data: []byte("DROP TABLE plugs;")},
		"20260102_000000_readings.up.sql":   {Data: []byte("CREATE TABLE readings (plug_id TEXT REFERENCES plugs(id), value REAL);")},
		"20260102_000000_readings.down.sql": {Data: []byte("DROP TABLE readings;")},
	})

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %d, want 2", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
	if applied[0].Version != "20260101_000000" {
		t.Errorf("first applied = %q, want 20260101_000000", applied[0].Version)
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO plugs (id) VALUES ('a')"); err != nil {
		t.Errorf("migrated table not usable: %v", err)
	}
}

func TestMigrate_FailureKeepsEarlierMigrations(t *testing.T) {
	withMigrations(t, fstest.MapFS{
		"20260101_000000_good.up.sql": {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20260102_000000_bad.up.sql":  {Data: []byte("CREATE TABLE oops (;")},
	})

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() expected error for invalid SQL, got nil")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied = %d, pending = %d, want 1 and 1", len(applied), len(pending))
	}
}

func TestLoadMigrations_MissingUp(t *testing.T) {
	withMigrations(t, fstest.MapFS{
		"20260101_000000_orphan.down.sql": {Data: []byte("DROP TABLE orphan;")},
	})

	if _, err := loadMigrations(); err == nil {
		t.Error("loadMigrations() expected error for down-only migration, got nil")
	}
}

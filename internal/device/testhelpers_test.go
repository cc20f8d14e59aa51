package device

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-w215/migrations" // registers the schema
)

// setupTestDB opens a migrated SQLite database in a per-test directory.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "registry.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// testPlug returns an unsaved plug with all four switch features and a pin.
func testPlug(name, ip string) *Device {
	d := &Device{
		Name:       name,
		ExternalID: "w215:" + ip,
		Protocol:   ProtocolW215,
		Params:     []Param{{Name: ParamW215PinCode, Value: "123456"}},
	}
	for _, typ := range AllFeatureTypes() {
		d.Features = append(d.Features, Feature{
			Name:       name + " " + string(typ),
			ExternalID: d.ExternalID + ":" + string(typ),
			Category:   CategorySwitch,
			Type:       typ,
		})
	}
	return d
}

func floatPtr(v float64) *float64 { return &v }

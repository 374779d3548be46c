package ingest

import (
	"context"
	"testing"

	"github.com/nerrad567/ptcontrol/internal/entity"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/database"
	"github.com/nerrad567/ptcontrol/migrations"
)

func TestIngestor_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	store := entity.NewSQLiteStore(db.DB)
	ing := New(store, 0)

	for _, m := range []struct{ topic, payload string }{
		{"sensors/temperature/data", "100"},
		{"sensors/temperature/status", "OFFLINE"},
		{"sensors/pressure/data", "bad"},
	} {
		_ = ing.HandleMessage(m.topic, []byte(m.payload))
	}

	records, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v, want only Temperature", records)
	}
	r := records[0]
	if r.Key != entity.KeyTemperature || r.Value == nil || *r.Value != 100 {
		t.Errorf("record = %+v, want Temperature=100", r)
	}
	if r.Liveness != entity.LivenessFailed || r.Origin != entity.OriginMQTT {
		t.Errorf("liveness/origin = %s/%s, want FAILED/mqtt", r.Liveness, r.Origin)
	}
}

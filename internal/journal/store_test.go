package journal

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"relaybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "journal.db"), testLogger())
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := RunMigrations(db, testLogger()); err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
	}
	version, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, version)
	}
}

func TestRecordAndSummary(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []domain.RequestRecord{
		{ID: "1", Kind: "text", ChatID: 1, Outcome: "ok", LatencyMs: 100, CreatedAt: now},
		{ID: "2", Kind: "text", ChatID: 1, Outcome: "error", Error: "quota exceeded", LatencyMs: 300, CreatedAt: now},
		{ID: "3", Kind: "draw", ChatID: 2, Outcome: "rejected", CreatedAt: now},
		{ID: "4", Kind: "draw", ChatID: 2, Outcome: "ok", LatencyMs: 2000, CreatedAt: now},
		{ID: "old", Kind: "text", ChatID: 3, Outcome: "ok", CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, r := range records {
		if err := j.Record(ctx, r); err != nil {
			t.Fatalf("Record(%s) failed: %v", r.ID, err)
		}
	}

	summary, err := j.Summary(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(summary) != 2 {
		t.Fatalf("expected 2 kinds, got %+v", summary)
	}
	draw, text := summary[0], summary[1]
	if draw.Kind != "draw" || draw.Total != 2 || draw.OK != 1 || draw.Rejected != 1 {
		t.Errorf("unexpected draw summary %+v", draw)
	}
	if text.Kind != "text" || text.Total != 2 || text.Errors != 1 || text.AvgLatencyMs != 200 {
		t.Errorf("unexpected text summary %+v", text)
	}
}

func TestRecent(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		rec := domain.RequestRecord{ID: id, Kind: "text", Outcome: "ok", CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := j.Record(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "b" {
		t.Fatalf("expected newest first, got %+v", recent)
	}
}

func TestRecord_DuplicateID(t *testing.T) {
	j := testJournal(t)
	rec := domain.RequestRecord{ID: "dup", Kind: "text", Outcome: "ok"}
	if err := j.Record(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if err := j.Record(context.Background(), rec); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

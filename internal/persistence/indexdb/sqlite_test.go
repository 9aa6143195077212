package indexdb

import (
	"path/filepath"
	"testing"
	"time"

	"neontactics.gg/internal/persistence/journal"
	"neontactics.gg/internal/sim/grid"
	"neontactics.gg/internal/sim/mapfile"
	"neontactics.gg/internal/sim/terrain"
)

func openTestIndex(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	return idx, path
}

func TestMatchLifecycleRows(t *testing.T) {
	idx, _ := openTestIndex(t)
	defer idx.Close()

	start := MatchStart{
		ID:              "room-1",
		MapID:           "skirmish",
		Players:         [2]string{"alice", "bob"},
		Seed:            42,
		ProtocolVersion: "1",
		JournalPath:     "/tmp/room-1.jsonl.zst",
		StartedAt:       time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := idx.RecordMatchStart(start); err != nil {
		t.Fatalf("RecordMatchStart: %v", err)
	}

	m, err := idx.Match("room-1")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if m.Players != start.Players || m.Seed != 42 || m.Winner != "" {
		t.Fatalf("match row mismatch: %+v", m)
	}
	if !m.FinishedAt.IsZero() {
		t.Fatal("unfinished match has finished_at")
	}

	if err := idx.RecordMatchEnd("room-1", "alice", 12, "/tmp/room-1.snap.zst"); err != nil {
		t.Fatalf("RecordMatchEnd: %v", err)
	}
	m, err = idx.Match("room-1")
	if err != nil {
		t.Fatalf("Match after end: %v", err)
	}
	if m.Winner != "alice" || m.Rounds != 12 || m.FinishedAt.IsZero() {
		t.Fatalf("finished row mismatch: %+v", m)
	}

	recent, err := idx.RecentMatches(10)
	if err != nil {
		t.Fatalf("RecentMatches: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "room-1" {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestActionIndexSurvivesReopen(t *testing.T) {
	idx, path := openTestIndex(t)
	if err := idx.RecordMatchStart(MatchStart{
		ID: "room-2", MapID: "skirmish", Players: [2]string{"a", "b"},
		StartedAt: time.Now(),
	}); err != nil {
		t.Fatalf("RecordMatchStart: %v", err)
	}
	for i := 1; i <= 5; i++ {
		idx.IndexAction("room-2", journal.Entry{
			Seq: uint64(i), Tick: uint64(i * 3), PlayerID: "a", Action: "SKIP_TURN", Digest: "d",
		})
	}
	// Close drains the writer and commits.
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx2.Close()
	n, err := idx2.ActionCount("room-2")
	if err != nil {
		t.Fatalf("ActionCount: %v", err)
	}
	if n != 5 {
		t.Fatalf("indexed actions = %d, want 5", n)
	}
}

func TestUpsertMapsIndexesValidDocuments(t *testing.T) {
	idx, _ := openTestIndex(t)
	defer idx.Close()

	dir := t.TempDir()
	m := &mapfile.Map{Terrain: terrain.NewFlat(grid.Bounds{Width: 6, Height: 4})}
	if err := mapfile.Save(filepath.Join(dir, "training.json"), m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	count, errs := idx.UpsertMaps(dir, nil)
	if len(errs) != 0 {
		t.Fatalf("UpsertMaps errors: %v", errs)
	}
	if count != 1 {
		t.Fatalf("indexed %d maps, want 1", count)
	}

	row, err := idx.MapByID("training")
	if err != nil {
		t.Fatalf("MapByID: %v", err)
	}
	if row.Width != 6 || row.Height != 4 || row.Digest == "" {
		t.Fatalf("map row mismatch: %+v", row)
	}

	maps, err := idx.Maps()
	if err != nil || len(maps) != 1 {
		t.Fatalf("Maps: %v %v", maps, err)
	}
}

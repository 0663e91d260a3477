package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := SnapshotV1{
		Header:       Header{Version: CurrentVersion, WorldID: "w1", Tick: 42},
		TickRate:     10,
		DefaultSpeed: 2,
		Grid:         GridV1{Width: 3, Height: 2, RLE: "AAYB"},
		Entities: []EntityV1{
			{ID: "E000001", Name: "lead", Pos: [2]int{1, 1}, Speed: 1, Path: &StoredPathV1{Target: [2]int{2, 1}, Waypoints: [][2]int{{2, 1}}}},
			{ID: "E000002", Name: "wing", Pos: [2]int{0, 1}, Speed: 1},
		},
		Counters: CountersV1{NextEntity: 2, NextJob: 5},
	}
	path := PathForTick(dir, in.Header.Tick)
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if out.Header != in.Header || out.Counters != in.Counters || out.Grid != in.Grid {
		t.Fatalf("header/counters/grid mismatch: %+v", out)
	}
	if len(out.Entities) != 2 || out.Entities[0].Path == nil || out.Entities[0].Path.Target != [2]int{2, 1} {
		t.Fatalf("entities=%+v", out.Entities)
	}
	if out.Entities[1].Path != nil {
		t.Fatalf("entity without path gained one")
	}

	h, err := ReadHeader(path)
	if err != nil || h.Tick != 42 || h.WorldID != "w1" {
		t.Fatalf("ReadHeader=%+v err=%v", h, err)
	}
}

func TestReadSnapshot_RejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.snap.zst")
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if got := Latest(dir); got != "" {
		t.Fatalf("empty dir: %q", got)
	}
	for _, tick := range []uint64{30, 300, 3} {
		if err := WriteSnapshot(PathForTick(dir, tick), SnapshotV1{Header: Header{Version: CurrentVersion, Tick: tick}}); err != nil {
			t.Fatalf("WriteSnapshot: %v", err)
		}
	}
	if got := Latest(dir); got != PathForTick(dir, 300) {
		t.Fatalf("Latest=%q", got)
	}
}

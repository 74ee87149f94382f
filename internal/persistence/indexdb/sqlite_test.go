package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"terrainforge.dev/internal/events"
	"terrainforge.dev/internal/persistence/snapshot"
)

func openTest(t *testing.T) *SQLiteIndex {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "world.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteIndex_TracksTileLifecycle(t *testing.T) {
	s := openTest(t)
	bus := events.NewBus()
	s.Attach(bus)

	bus.Publish(events.Event{Kind: events.TileGenerated, X: 2, Z: -1, Digest: "d1"})
	bus.Publish(events.Event{Kind: events.TileActivated, X: 2, Z: -1, Digest: "d1"})
	bus.Publish(events.Event{Kind: events.InstancesActivated, X: 2, Z: -1, Instances: 7})
	bus.Publish(events.Event{Kind: events.TileDeactivated, X: 2, Z: -1})
	bus.Publish(events.Event{Kind: events.TileCached, X: 2, Z: -1})
	bus.Publish(events.Event{Kind: events.TileActivated, X: 2, Z: -1, Digest: "d1"})
	bus.Publish(events.Event{Kind: events.TileFailed, X: 9, Z: 9, Err: "boom"})

	ctx := context.Background()
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	row, ok, err := s.Tile(ctx, 2, -1)
	if err != nil || !ok {
		t.Fatalf("tile 2,-1: ok=%v err=%v", ok, err)
	}
	if row.State != "active" || row.Digest != "d1" || row.Generated != 1 || row.Activated != 2 {
		t.Fatalf("unexpected row: %+v", row)
	}

	failed, ok, err := s.Tile(ctx, 9, 9)
	if err != nil || !ok {
		t.Fatalf("tile 9,9: ok=%v err=%v", ok, err)
	}
	if failed.State != "failed" || failed.Err != "boom" {
		t.Fatalf("unexpected failed row: %+v", failed)
	}

	if _, ok, err := s.Tile(ctx, 100, 100); err != nil || ok {
		t.Fatalf("unseen tile: ok=%v err=%v", ok, err)
	}

	total, err := s.CountEvents(ctx, "")
	if err != nil || total != 7 {
		t.Fatalf("total events: got %d (%v) want 7", total, err)
	}
	acts, err := s.CountEvents(ctx, events.TileActivated)
	if err != nil || acts != 2 {
		t.Fatalf("activated events: got %d (%v) want 2", acts, err)
	}
}

func TestSQLiteIndex_MetaAndSnapshots(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.UpsertMeta("w1", 42, []byte(`{"seed":42}`)); err != nil {
		t.Fatalf("upsert meta: %v", err)
	}
	if v, err := s.Meta(ctx, "world_id"); err != nil || v != "w1" {
		t.Fatalf("world_id: got %q (%v)", v, err)
	}
	if v, err := s.Meta(ctx, "seed"); err != nil || v != "42" {
		t.Fatalf("seed: got %q (%v)", v, err)
	}

	s.RecordSnapshot("/tmp/a.snap.zst", snapshot.Header{Version: 1, WorldID: "w1", Seed: 42, Tiles: 9})
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	var tiles int
	if err := s.db.QueryRowContext(ctx, `SELECT tiles FROM snapshots WHERE path=?`, "/tmp/a.snap.zst").Scan(&tiles); err != nil {
		t.Fatalf("query snapshot: %v", err)
	}
	if tiles != 9 {
		t.Fatalf("snapshot tiles: got %d want 9", tiles)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqEvent}

	s.RecordEvent(events.Event{Kind: events.TileActivated})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.Header{})

	st := s.Stats()
	if st.DropEventTotal != 1 {
		t.Fatalf("DropEventTotal=%d want=1", st.DropEventTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_CloseIsIdempotent(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "x.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	bus := events.NewBus()
	s.Attach(bus)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if bus.Len() != 0 {
		t.Fatalf("Close should unsubscribe from the bus")
	}
	bus.Publish(events.Event{Kind: events.TileActivated})
}

func TestSQLiteIndex_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.RecordEvent(events.Event{Kind: events.TileGenerated, X: 1, Z: 1, Digest: "abc"})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	row, ok, err := s2.Tile(context.Background(), 1, 1)
	if err != nil || !ok || row.Digest != "abc" || row.State != "generated" {
		t.Fatalf("row after reopen: %+v ok=%v err=%v", row, ok, err)
	}
}

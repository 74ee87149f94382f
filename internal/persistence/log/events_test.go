package log

import (
	"testing"
	"time"

	"terrainforge.dev/internal/events"
)

func TestEventLogger_RecordsBusEvents(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus()
	l := NewEventLogger(dir, "w1", nil)
	clock := time.Date(2024, 5, 1, 3, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	l.Attach(bus)

	bus.Publish(events.Event{Kind: events.TileActivated, X: 1, Z: -2, Digest: "abc", Heights: []float64{1, 2, 3}})
	clock = clock.Add(time.Minute)
	bus.Publish(events.Event{Kind: events.TileFailed, X: 4, Z: 5, Err: "boom"})
	if l.Written() != 2 {
		t.Fatalf("written=%d want 2", l.Written())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if bus.Len() != 0 {
		t.Fatalf("Close should unsubscribe, %d handlers left", bus.Len())
	}
	bus.Publish(events.Event{Kind: events.TileEvicted})

	segs, err := ListSegments(EventDir(dir), EventPrefix)
	if err != nil || len(segs) != 2 {
		t.Fatalf("segments=%v err=%v want one per hour", segs, err)
	}
	got, err := ReadEvents(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries: got %d want 2", len(got))
	}
	if got[0].Kind != "TILE_ACTIVATED" || got[0].X != 1 || got[0].Z != -2 || got[0].Digest != "abc" || got[0].World != "w1" {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if !got[0].Time.Equal(time.Date(2024, 5, 1, 3, 59, 0, 0, time.UTC)) {
		t.Fatalf("time=%v", got[0].Time)
	}
	if got[1].Kind != "TILE_FAILED" || got[1].Err != "boom" {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
}

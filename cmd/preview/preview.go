package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"terrainforge.dev/internal/events"
	persistlog "terrainforge.dev/internal/persistence/log"
	"terrainforge.dev/internal/persistence/snapshot"
	"terrainforge.dev/internal/tile"
	"terrainforge.dev/internal/tuning"
	"terrainforge.dev/internal/world"
)

func printTiles(out io.Writer, tiles []*tile.Tile) {
	for _, t := range tiles {
		lo, hi := t.HeightRange()
		counts := map[int]int{}
		for _, d := range t.Dominant() {
			counts[d]++
		}
		best, bestN := -1, -1
		for b, n := range counts {
			if n > bestN || (n == bestN && b < best) {
				best, bestN = b, n
			}
		}
		fmt.Fprintf(out, "tile %-8s h=[%8.3f,%8.3f] biome=%2d digest=%s\n", t.Position(), lo, hi, best, t.DigestHex()[:16])
	}
}

func snapshotTuning(snap snapshot.SnapshotV1) (tuning.Tuning, error) {
	var t tuning.Tuning
	if len(snap.Tuning) == 0 {
		return t, errors.New("snapshot carries no tuning")
	}
	if err := json.Unmarshal(snap.Tuning, &t); err != nil {
		return t, err
	}
	t.Normalize()
	return t, t.Validate()
}

// verifySnapshot regenerates every tile in snap and compares digests.
func verifySnapshot(ctx context.Context, tune tuning.Tuning, snap snapshot.SnapshotV1) (int, error) {
	w, err := world.New(ctx, world.Config{ID: snap.Header.WorldID, Tuning: tune})
	if err != nil {
		return 0, err
	}
	defer w.Close()
	for i, tv := range snap.Tiles {
		pos := tile.GridPosition{X: tv.X, Z: tv.Z}
		got, err := w.Builder().Build(ctx, pos)
		if err != nil {
			return i, fmt.Errorf("tile %s: %w", pos, err)
		}
		if got.DigestHex() != tv.Digest {
			return i, fmt.Errorf("digest mismatch at tile %s: got=%s want=%s", pos, got.DigestHex(), tv.Digest)
		}
	}
	return len(snap.Tiles), nil
}

// verifyEvents regenerates every tile recorded as generated in the event log
// and compares digests.
func verifyEvents(ctx context.Context, tune tuning.Tuning, dir string) (int, error) {
	segs, err := persistlog.ListSegments(dir, persistlog.EventPrefix)
	if err != nil {
		return 0, err
	}
	if len(segs) == 0 {
		return 0, fmt.Errorf("no events files found in %s", dir)
	}
	w, err := world.New(ctx, world.Config{ID: "verify", Tuning: tune})
	if err != nil {
		return 0, err
	}
	defer w.Close()

	seen := map[tile.GridPosition]string{}
	checked := 0
	for _, seg := range segs {
		entries, err := persistlog.Read[persistlog.Entry](seg.Path())
		if err != nil {
			return checked, err
		}
		for _, e := range entries {
			if events.Kind(e.Kind) != events.TileGenerated {
				continue
			}
			pos := tile.GridPosition{X: e.X, Z: e.Z}
			want, ok := seen[pos]
			if !ok {
				t, err := w.Builder().Build(ctx, pos)
				if err != nil {
					return checked, fmt.Errorf("tile %s: %w", pos, err)
				}
				want = t.DigestHex()
				seen[pos] = want
			}
			if e.Digest != want {
				return checked, fmt.Errorf("digest mismatch at tile %s: got=%s want=%s", pos, want, e.Digest)
			}
			checked++
		}
	}
	return checked, nil
}

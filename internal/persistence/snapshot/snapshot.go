// Package snapshot writes and reads zstd-compressed tile snapshots: one JSON
// header line followed by a gob-encoded body.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/tile"
)

const Version = 1

// ErrDigestMismatch is returned when a restored tile does not hash to the
// digest recorded at export.
var ErrDigestMismatch = errors.New("snapshot: tile digest mismatch")

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Seed    int64  `json:"seed"`
	Tiles   int    `json:"tiles"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Tuning is the JSON form of the tuning the tiles were built with.
	Tuning []byte   `json:"tuning,omitempty"`
	Tiles  []TileV1 `json:"tiles"`
}

type TileV1 struct {
	X          int         `json:"x"`
	Z          int         `json:"z"`
	Resolution int         `json:"resolution"`
	Length     float64     `json:"length"`
	Heights    []float64   `json:"heights"`
	Weights    [][]float64 `json:"weights"`
	Dominant   []int       `json:"dominant"`
	Digest     string      `json:"digest"`
}

// FromTiles captures tiles in the order given.
func FromTiles(worldID string, seed int64, tiles []*tile.Tile) SnapshotV1 {
	snap := SnapshotV1{Header: Header{Version: Version, WorldID: worldID, Seed: seed, Tiles: len(tiles)}}
	snap.Tiles = make([]TileV1, 0, len(tiles))
	for _, t := range tiles {
		pos := t.Position()
		tv := TileV1{
			X:          pos.X,
			Z:          pos.Z,
			Resolution: t.Resolution(),
			Length:     t.Length(),
			Heights:    append([]float64(nil), t.Heights()...),
			Dominant:   append([]int(nil), t.Dominant()...),
			Digest:     t.DigestHex(),
		}
		for _, g := range t.Weights() {
			tv.Weights = append(tv.Weights, append([]float64(nil), g.Cells...))
		}
		snap.Tiles = append(snap.Tiles, tv)
	}
	return snap
}

// Tile rebuilds the tile and checks it against the recorded digest.
func (tv TileV1) Tile() (*tile.Tile, error) {
	m := biome.Map{Res: tv.Resolution, Dominant: tv.Dominant}
	for _, cells := range tv.Weights {
		m.Weights = append(m.Weights, biome.Grid{Res: tv.Resolution, Cells: cells})
	}
	t := tile.New(tile.GridPosition{X: tv.X, Z: tv.Z}, tv.Resolution, tv.Length, tv.Heights, m)
	if tv.Digest != "" && t.DigestHex() != tv.Digest {
		return t, fmt.Errorf("%w: tile %d,%d", ErrDigestMismatch, tv.X, tv.Z)
	}
	return t, nil
}

// Restore rebuilds every tile in the snapshot.
func (s SnapshotV1) Restore() ([]*tile.Tile, error) {
	out := make([]*tile.Tile, 0, len(s.Tiles))
	for _, tv := range s.Tiles {
		t, err := tv.Tile()
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	snap.Header.Tiles = len(snap.Tiles)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot: unsupported version %d", snap.Header.Version)
	}
	return snap, nil
}

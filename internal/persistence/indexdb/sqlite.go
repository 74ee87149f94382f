// Package indexdb keeps a queryable sqlite index of tile lifecycle events.
package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"terrainforge.dev/internal/events"
	"terrainforge.dev/internal/persistence/snapshot"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	cancel func()

	dropEvent    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	event    eventRow
	snapshot snapshotRow
	done     chan struct{}
}

type eventRow struct {
	Kind       string
	X, Z       int
	Digest     string
	Err        string
	Instances  int
	RecordedAt string
}

type snapshotRow struct {
	Path       string
	WorldID    string
	Seed       int64
	Tiles      int
	RecordedAt string
}

// TileRow is the latest known state of one tile.
type TileRow struct {
	X         int
	Z         int
	Digest    string
	State     string
	Generated int
	Activated int
	Err       string
	UpdatedAt string
}

// Stats reports queue pressure. Events are dropped rather than blocking the
// publisher when the writer falls behind.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropEventTotal    uint64 `json:"drop_event_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tiles (
			x INTEGER NOT NULL,
			z INTEGER NOT NULL,
			digest TEXT NOT NULL,
			state TEXT NOT NULL,
			generated INTEGER NOT NULL,
			activated INTEGER NOT NULL,
			err TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (x, z)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tiles_state ON tiles(state);`,
		`CREATE TABLE IF NOT EXISTS tile_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			x INTEGER NOT NULL,
			z INTEGER NOT NULL,
			digest TEXT NOT NULL,
			err TEXT NOT NULL,
			instances INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tile_events_pos ON tile_events(x, z, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_tile_events_kind ON tile_events(kind);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			tiles INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Attach records every bus event.
func (s *SQLiteIndex) Attach(bus *events.Bus) {
	s.cancel = bus.Subscribe(s.RecordEvent)
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventTotal:    s.dropEvent.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) RecordEvent(e events.Event) {
	if s == nil || s.closed.Load() {
		return
	}
	r := eventRow{
		Kind:       string(e.Kind),
		X:          e.X,
		Z:          e.Z,
		Digest:     e.Digest,
		Err:        e.Err,
		Instances:  e.Instances,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqEvent, event: r}:
	default:
		// Drop if the indexer falls behind; the JSONL log remains the source of truth.
		s.dropEvent.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, h snapshot.Header) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Path:       path,
		WorldID:    h.WorldID,
		Seed:       h.Seed,
		Tiles:      h.Tiles,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Sync blocks until every request queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertMeta stores world identity and the tuning it runs with.
func (s *SQLiteIndex) UpsertMeta(worldID string, seed int64, tuningJSON []byte) error {
	if s == nil {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, kv := range [][2]string{
		{"world_id", worldID},
		{"seed", fmt.Sprint(seed)},
		{"tuning", string(tuningJSON)},
		{"updated_at", time.Now().UTC().Format(time.RFC3339Nano)},
	} {
		if _, err := stmt.Exec(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	return v, err
}

// Tile returns the latest row for (x,z). ok is false when the tile was never
// seen.
func (s *SQLiteIndex) Tile(ctx context.Context, x, z int) (row TileRow, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT x,z,digest,state,generated,activated,err,updated_at FROM tiles WHERE x=? AND z=?`, x, z,
	).Scan(&row.X, &row.Z, &row.Digest, &row.State, &row.Generated, &row.Activated, &row.Err, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return row, false, nil
	}
	if err != nil {
		return row, false, err
	}
	return row, true, nil
}

// CountEvents counts recorded events of kind, or of every kind when kind is
// empty.
func (s *SQLiteIndex) CountEvents(ctx context.Context, kind events.Kind) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tile_events`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tile_events WHERE kind=?`, string(kind)).Scan(&n)
	}
	return n, err
}

// tileState maps an event kind to the tiles.state it leaves behind. Instance
// events do not change tile state.
func tileState(kind string) (state string, generated, activated int, ok bool) {
	switch events.Kind(kind) {
	case events.TileGenerated:
		return "generated", 1, 0, true
	case events.TileActivated:
		return "active", 0, 1, true
	case events.TileDeactivated:
		return "inactive", 0, 0, true
	case events.TileCached:
		return "cached", 0, 0, true
	case events.TileEvicted:
		return "evicted", 0, 0, true
	case events.TileFailed:
		return "failed", 0, 0, true
	}
	return "", 0, 0, false
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertEvent, _ := s.db.Prepare(`INSERT INTO tile_events(kind,x,z,digest,err,instances,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	upsertTile, _ := s.db.Prepare(`INSERT INTO tiles(x,z,digest,state,generated,activated,err,updated_at) VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(x,z) DO UPDATE SET
			digest=CASE WHEN excluded.digest<>'' THEN excluded.digest ELSE tiles.digest END,
			state=excluded.state,
			generated=tiles.generated+excluded.generated,
			activated=tiles.activated+excluded.activated,
			err=excluded.err,
			updated_at=excluded.updated_at`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,world_id,seed,tiles,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, upsertTile, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		// Commit when idle too: readers share the single connection.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			e := r.event
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(e.Kind, e.X, e.Z, e.Digest, e.Err, e.Instances, e.RecordedAt); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			state, gen, act, ok := tileState(e.Kind)
			if ok && upsertTile != nil {
				if _, err := tx.Stmt(upsertTile).Exec(e.X, e.Z, e.Digest, state, gen, act, e.Err, e.RecordedAt); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(sn.Path, sn.WorldID, sn.Seed, sn.Tiles, sn.RecordedAt); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

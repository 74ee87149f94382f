// Package log writes lifecycle events as hourly zstd JSONL segments.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	segmentSuffix = ".jsonl.zst"
	hourLayout    = "2006-01-02-15"
)

// Segment names one hour of log: <Dir>/<Prefix>-YYYY-MM-DD-HH.jsonl.zst.
type Segment struct {
	Dir    string
	Prefix string
	Hour   time.Time
}

// SegmentFor returns the segment holding entries stamped t.
func SegmentFor(dir, prefix string, t time.Time) Segment {
	return Segment{Dir: dir, Prefix: prefix, Hour: t.UTC().Truncate(time.Hour)}
}

func (s Segment) Path() string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s-%s%s", s.Prefix, s.Hour.Format(hourLayout), segmentSuffix))
}

// ListSegments returns the segments of prefix found in dir, oldest first.
// Files whose name does not parse are skipped.
func ListSegments(dir, prefix string) ([]Segment, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Segment
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), segmentSuffix)
		hour, err := time.ParseInLocation(hourLayout, stamp, time.UTC)
		if err != nil {
			continue
		}
		out = append(out, Segment{Dir: dir, Prefix: prefix, Hour: hour})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out, nil
}

// Writer appends values of T as JSON lines. Each value goes to the segment of
// the hour its stamp falls in; a value from another hour closes the current
// segment. Every Write is flushed through the zstd frame so a crash loses at
// most the value being written.
type Writer[T any] struct {
	dir    string
	prefix string
	stamp  func(T) time.Time

	mu    sync.Mutex
	seg   Segment
	f     *os.File
	enc   *zstd.Encoder
	buf   *bufio.Writer
	lines int
}

func NewWriter[T any](dir, prefix string, stamp func(T) time.Time) *Writer[T] {
	return &Writer[T]{dir: dir, prefix: prefix, stamp: stamp}
}

func (w *Writer[T]) Write(v T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := SegmentFor(w.dir, w.prefix, w.stamp(v))
	if w.f == nil || !seg.Hour.Equal(w.seg.Hour) {
		if err := w.openLocked(seg); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if err := w.enc.Flush(); err != nil {
		return err
	}
	w.lines++
	return nil
}

// Lines reports how many values were written since the writer was created.
func (w *Writer[T]) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Current returns the open segment, if any.
func (w *Writer[T]) Current() (Segment, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seg, w.f != nil
}

func (w *Writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer[T]) openLocked(seg Segment) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(seg.Dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(seg.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.seg, w.f, w.enc = seg, f, enc
	w.buf = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (w *Writer[T]) closeLocked() error {
	if w.f == nil {
		return nil
	}
	err := errors.Join(w.buf.Flush(), w.enc.Close(), w.f.Close())
	w.f, w.enc, w.buf = nil, nil, nil
	return err
}

// Read decodes every line of one segment. A segment reopened after a restart
// holds several zstd frames; the decoder reads them back to back.
func Read[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []T
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return out, fmt.Errorf("%s:%d: %w", filepath.Base(path), n, err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}

package log

import (
	"io"
	stdlog "log"
	"path/filepath"
	"time"

	"terrainforge.dev/internal/events"
)

// EventPrefix names the lifecycle log segments inside <world>/events.
const EventPrefix = "events"

// Entry is one line of the lifecycle log. Heights are never logged.
type Entry struct {
	Time      time.Time `json:"time"`
	World     string    `json:"world"`
	Kind      string    `json:"kind"`
	X         int       `json:"x"`
	Z         int       `json:"z"`
	Digest    string    `json:"digest,omitempty"`
	Err       string    `json:"err,omitempty"`
	Instances int       `json:"instances,omitempty"`
}

func entryTime(e Entry) time.Time { return e.Time }

// EventDir returns the directory holding a world's lifecycle segments.
func EventDir(worldDir string) string { return filepath.Join(worldDir, "events") }

// EventLogger appends every bus event to the world's lifecycle log.
type EventLogger struct {
	w      *Writer[Entry]
	world  string
	now    func() time.Time
	logger *stdlog.Logger
	cancel func()
}

func NewEventLogger(worldDir, worldID string, logger *stdlog.Logger) *EventLogger {
	if logger == nil {
		logger = stdlog.New(io.Discard, "", 0)
	}
	return &EventLogger{
		w:      NewWriter(EventDir(worldDir), EventPrefix, entryTime),
		world:  worldID,
		now:    time.Now,
		logger: logger,
	}
}

// Attach subscribes the logger to bus. Write errors are logged and dropped.
func (l *EventLogger) Attach(bus *events.Bus) {
	l.cancel = bus.Subscribe(func(e events.Event) {
		if err := l.WriteEvent(e); err != nil {
			l.logger.Printf("event log: %v", err)
		}
	})
}

func (l *EventLogger) WriteEvent(e events.Event) error {
	return l.w.Write(Entry{
		Time:      l.now().UTC(),
		World:     l.world,
		Kind:      string(e.Kind),
		X:         e.X,
		Z:         e.Z,
		Digest:    e.Digest,
		Err:       e.Err,
		Instances: e.Instances,
	})
}

// Written reports how many entries were logged.
func (l *EventLogger) Written() int { return l.w.Lines() }

func (l *EventLogger) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	return l.w.Close()
}

// ReadEvents returns every entry logged under worldDir, oldest segment first.
func ReadEvents(worldDir string) ([]Entry, error) {
	segs, err := ListSegments(EventDir(worldDir), EventPrefix)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, s := range segs {
		es, err := Read[Entry](s.Path())
		if err != nil {
			return out, err
		}
		out = append(out, es...)
	}
	return out, nil
}

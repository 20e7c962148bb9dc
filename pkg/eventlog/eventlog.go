// Package eventlog is the append-only incident record. Every fall,
// near-fall, assessment outcome, and alert action is written through
// here, and the file survives process restarts so the history screen
// always shows the full record.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies a logged event.
type Type string

const (
	TypeFall              Type = "fall"
	TypeNearFall          Type = "near_fall"
	TypeAssessmentOutcome Type = "assessment_outcome"
	TypeAlertResult       Type = "alert_result"
	TypeSystem            Type = "system"
)

// Event is one immutable log entry.
type Event struct {
	// ID is a unique identifier assigned at append time.
	ID string `json:"id"`

	// Timestamp is when the event was recorded. Timestamps are
	// non-decreasing in log order.
	Timestamp time.Time `json:"timestamp"`

	// Type classifies the event.
	Type Type `json:"type"`

	// Metadata carries event details as flat key/value pairs, e.g. the
	// check-in outcome or an alert action description.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Clip is the path to the pre-incident video clip, when one was
	// captured. Only fall events carry a clip.
	Clip string `json:"clip,omitempty"`
}

// Log is an append-only, line-delimited JSON event store. Appends are
// serialized; the in-memory view and the file never disagree on order.
type Log struct {
	mu     sync.Mutex
	file   *os.File
	enc    *json.Encoder
	events []Event
	last   time.Time
	logger *slog.Logger
}

// Open opens (or creates) the event log at path and loads any existing
// entries. Entries are returned by Events in exactly the order they
// were appended, across restarts.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "eventlog")

	events, err := readAll(path, logger)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}

	l := &Log{
		file:   file,
		enc:    json.NewEncoder(file),
		events: events,
		logger: logger,
	}
	if n := len(events); n > 0 {
		l.last = events[n-1].Timestamp
		logger.Info("event log loaded", "path", path, "events", n)
	}
	return l, nil
}

// readAll loads existing entries. A malformed trailing line (a crash
// mid-write) is dropped with a warning rather than poisoning the log.
func readAll(path string, logger *slog.Logger) ([]Event, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eventlog: read %s: %w", path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Warn("dropping malformed event line", "line", line, "error", err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: scan %s: %w", path, err)
	}
	return events, nil
}

// Append records an event with the given type and metadata and returns
// the stored entry.
func (l *Log) Append(typ Type, metadata map[string]string) (Event, error) {
	return l.append(typ, metadata, "")
}

// AppendClip records an event that references a captured clip.
func (l *Log) AppendClip(typ Type, metadata map[string]string, clip string) (Event, error) {
	return l.append(typ, metadata, clip)
}

func (l *Log) append(typ Type, metadata map[string]string, clip string) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now()
	if ts.Before(l.last) {
		// Wall clock stepped backwards; clamp so log order stays
		// consistent with timestamp order.
		ts = l.last
	}

	ev := Event{
		ID:        uuid.New().String(),
		Timestamp: ts,
		Type:      typ,
		Metadata:  metadata,
		Clip:      clip,
	}
	if err := l.enc.Encode(ev); err != nil {
		return Event{}, fmt.Errorf("eventlog: append: %w", err)
	}

	l.events = append(l.events, ev)
	l.last = ts
	l.logger.Info("event recorded", "id", ev.ID, "type", typ)
	return ev, nil
}

// Events returns a copy of all entries in append order.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of stored entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Close flushes and closes the backing file. Appends after Close fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("eventlog: sync: %w", err)
	}
	return l.file.Close()
}

package eventlog_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vigil-labs/go-vigil/pkg/eventlog"
)

func TestAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	log, err := eventlog.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	appended := []eventlog.Event{}
	kinds := []eventlog.Type{
		eventlog.TypeSystem,
		eventlog.TypeNearFall,
		eventlog.TypeFall,
		eventlog.TypeAssessmentOutcome,
		eventlog.TypeAlertResult,
	}
	for i, typ := range kinds {
		ev, err := log.Append(typ, map[string]string{"seq": string(rune('a' + i))})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		appended = append(appended, ev)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reloaded, err := eventlog.Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reloaded.Close()

	got := reloaded.Events()
	if len(got) != len(appended) {
		t.Fatalf("reloaded %d events, want %d", len(got), len(appended))
	}
	for i := range appended {
		if got[i].ID != appended[i].ID {
			t.Errorf("event %d: id %s, want %s", i, got[i].ID, appended[i].ID)
		}
		if got[i].Type != appended[i].Type {
			t.Errorf("event %d: type %s, want %s", i, got[i].Type, appended[i].Type)
		}
		if got[i].Metadata["seq"] != appended[i].Metadata["seq"] {
			t.Errorf("event %d: metadata mismatch", i)
		}
	}
}

func TestAppendOrderAndIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := eventlog.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	seen := map[string]bool{}
	var prev time.Time
	for i := 0; i < 50; i++ {
		ev, err := log.Append(eventlog.TypeSystem, nil)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if seen[ev.ID] {
			t.Fatalf("duplicate id %s", ev.ID)
		}
		seen[ev.ID] = true
		if ev.Timestamp.Before(prev) {
			t.Fatalf("timestamp went backwards at event %d", i)
		}
		prev = ev.Timestamp
	}
	if log.Len() != 50 {
		t.Errorf("Len = %d, want 50", log.Len())
	}
}

func TestReloadSkipsTruncatedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := eventlog.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := log.Append(eventlog.TypeFall, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	log.Close()

	// Simulate a crash mid-append.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString(`{"id":"trunc`)
	f.Close()

	reloaded, err := eventlog.Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reloaded.Close()
	if reloaded.Len() != 1 {
		t.Errorf("Len = %d, want 1 (truncated line dropped)", reloaded.Len())
	}
}

func TestClipAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := eventlog.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	ev, err := log.AppendClip(eventlog.TypeFall, nil, "/clips/fall_1.mjpeg")
	if err != nil {
		t.Fatalf("AppendClip: %v", err)
	}
	if ev.Clip != "/clips/fall_1.mjpeg" {
		t.Errorf("Clip = %q", ev.Clip)
	}
}

func TestClipBuffer(t *testing.T) {
	t.Run("evicts frames outside the window", func(t *testing.T) {
		buf := eventlog.NewClipBuffer(time.Second)
		base := time.Now()
		buf.Add(base, []byte{1})
		buf.Add(base.Add(500*time.Millisecond), []byte{2})
		buf.Add(base.Add(2*time.Second), []byte{3})

		if buf.Len() != 1 {
			t.Errorf("Len = %d, want 1 after eviction", buf.Len())
		}
	})

	t.Run("flush concatenates in order and clears", func(t *testing.T) {
		buf := eventlog.NewClipBuffer(10 * time.Second)
		base := time.Now()
		buf.Add(base, []byte("aa"))
		buf.Add(base.Add(time.Millisecond), []byte("bb"))

		dir := t.TempDir()
		path, err := buf.Flush(dir)
		if err != nil {
			t.Fatalf("Flush: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read clip: %v", err)
		}
		if string(data) != "aabb" {
			t.Errorf("clip = %q, want frames in capture order", data)
		}
		if buf.Len() != 0 {
			t.Errorf("Len = %d after flush, want 0", buf.Len())
		}
	})

	t.Run("empty buffer flushes to no clip", func(t *testing.T) {
		buf := eventlog.NewClipBuffer(time.Second)
		path, err := buf.Flush(t.TempDir())
		if err != nil {
			t.Fatalf("Flush: %v", err)
		}
		if path != "" {
			t.Errorf("path = %q, want empty", path)
		}
	})
}

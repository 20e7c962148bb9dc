package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ClipBuffer keeps a rolling window of encoded camera frames so that
// when a fall is confirmed, the seconds leading up to it can be saved.
// Frames older than the window are evicted as new frames arrive.
type ClipBuffer struct {
	mu     sync.Mutex
	window time.Duration
	frames []clipFrame
}

type clipFrame struct {
	ts   time.Time
	data []byte
}

// NewClipBuffer creates a buffer retaining roughly window of frames.
func NewClipBuffer(window time.Duration) *ClipBuffer {
	return &ClipBuffer{window: window}
}

// Add stores one encoded frame and evicts everything older than the
// retention window. The frame bytes are not copied; callers must not
// reuse the slice.
func (b *ClipBuffer) Add(ts time.Time, frame []byte) {
	if len(frame) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frames = append(b.frames, clipFrame{ts: ts, data: frame})
	cutoff := ts.Add(-b.window)
	i := 0
	for i < len(b.frames) && b.frames[i].ts.Before(cutoff) {
		i++
	}
	b.frames = b.frames[i:]
}

// Len returns the number of buffered frames.
func (b *ClipBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Flush writes the buffered frames to a new clip file in dir and
// clears the buffer. Frames are concatenated in capture order as an
// MJPEG stream. An empty buffer returns an empty path and no error;
// the caller simply records the event without a clip.
func (b *ClipBuffer) Flush(dir string) (string, error) {
	b.mu.Lock()
	frames := b.frames
	b.frames = nil
	b.mu.Unlock()

	if len(frames) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("eventlog: create clip dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("fall_%s.mjpeg", frames[0].ts.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("eventlog: create clip: %w", err)
	}
	for _, fr := range frames {
		if _, err := f.Write(fr.data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("eventlog: write clip: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("eventlog: close clip: %w", err)
	}
	return path, nil
}

package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// wavHeaderSize is the canonical RIFF/WAVE header length produced by
// arecord for PCM16 output.
const wavHeaderSize = 44

// DeviceListener captures microphone audio by invoking arecord, the
// standard ALSA capture tool present on the target devices. Audio is
// recorded to a temporary wav file; the caller owns the artifact via
// Recording.Discard.
type DeviceListener struct {
	config *Config
	logger *slog.Logger

	// binary is swappable for tests.
	binary string
}

// NewDeviceListener creates a listener bound to the default ALSA
// capture device.
func NewDeviceListener(opts ...Option) *DeviceListener {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &DeviceListener{
		config: cfg,
		logger: cfg.Logger.With("component", "speech.listener"),
		binary: "arecord",
	}
}

// Listen records mono PCM16 for the given duration. Device failures are
// returned as ErrDeviceUnavailable so callers can treat the step as a
// timeout rather than a crash.
func (l *DeviceListener) Listen(ctx context.Context, duration time.Duration) (*Recording, error) {
	f, err := os.CreateTemp("", "vigil-capture-*.wav")
	if err != nil {
		return nil, fmt.Errorf("speech: create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	secs := int(duration.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}

	cmd := exec.CommandContext(ctx, l.binary,
		"-q",
		"-f", "S16_LE",
		"-r", fmt.Sprint(l.config.SampleRate),
		"-c", "1",
		"-d", fmt.Sprint(secs),
		path,
	)
	if err := cmd.Run(); err != nil {
		os.Remove(path)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("speech: read capture: %w", err)
	}

	rec := &Recording{
		Path:       path,
		SampleRate: l.config.SampleRate,
		Duration:   duration,
	}
	if len(data) > wavHeaderSize {
		rec.Audio = data[wavHeaderSize:]
	}

	l.logger.Debug("captured audio",
		"seconds", secs,
		"bytes", len(rec.Audio),
		"path", path,
	)
	return rec, nil
}

// Verify DeviceListener implements Listener at compile time.
var _ Listener = (*DeviceListener)(nil)

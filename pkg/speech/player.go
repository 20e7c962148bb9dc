package speech

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// DevicePlayer plays PCM16 mono audio by piping it to aplay, the ALSA
// playback counterpart of the arecord listener.
type DevicePlayer struct {
	logger *slog.Logger

	// binary is swappable for tests.
	binary string
}

// NewDevicePlayer creates a player bound to the default ALSA output
// device.
func NewDevicePlayer(opts ...Option) *DevicePlayer {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &DevicePlayer{
		logger: cfg.Logger.With("component", "speech.player"),
		binary: "aplay",
	}
}

// Play blocks until playback completes. Device failures are returned
// as ErrDeviceUnavailable.
func (p *DevicePlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-q",
		"-f", "S16_LE",
		"-r", fmt.Sprint(sampleRate),
		"-c", "1",
		"-t", "raw",
		"-",
	)
	cmd.Stdin = bytes.NewReader(pcm)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	p.logger.Debug("played audio", "bytes", len(pcm), "sample_rate", sampleRate)
	return nil
}

// Verify DevicePlayer implements Player at compile time.
var _ Player = (*DevicePlayer)(nil)

// Package speech defines the voice I/O contracts used by the check-in
// flow: speaking a prompt, capturing a reply, and transcribing it.
//
// The engines behind these contracts are external. Synthesis goes to an
// HTTP TTS provider, transcription to a streaming speech-to-text API,
// and capture to whatever audio device the host exposes. All of them sit
// behind narrow interfaces so tests (and dev machines without audio
// hardware) can substitute mocks.
//
// Everything in this package blocks, by design: callers run these
// operations on the dedicated voice goroutine and bound them with a
// context deadline.
package speech

import (
	"context"
	"os"
	"time"
)

// Synthesizer speaks text aloud, returning once playback has finished.
type Synthesizer interface {
	// Speak synthesizes and plays text. It blocks until the audio has
	// been fully delivered or the context expires.
	Speak(ctx context.Context, text string) error
}

// Listener captures audio from the input device for a fixed duration.
type Listener interface {
	// Listen records for up to the given duration and returns the
	// captured audio. A recording with no voice content is returned as
	// an empty Recording, not an error.
	Listen(ctx context.Context, duration time.Duration) (*Recording, error)
}

// Transcriber converts a recording to text.
type Transcriber interface {
	// Transcribe returns the lowercased transcript of the recording,
	// or an empty string when nothing intelligible was captured.
	Transcribe(ctx context.Context, rec *Recording) (string, error)
}

// Recording is captured audio from one listen step. When Path is set it
// refers to a temporary artifact on disk that the owner must Discard.
type Recording struct {
	// Audio is raw PCM16 mono audio.
	Audio []byte

	// Path is the temporary file holding the audio, if any.
	Path string

	// SampleRate in Hz. Whisper-family engines want 16000.
	SampleRate int

	// Duration of the captured audio.
	Duration time.Duration
}

// Empty reports whether the recording captured no audio.
func (r *Recording) Empty() bool {
	return r == nil || (len(r.Audio) == 0 && r.Path == "")
}

// Discard removes any temporary artifact backing the recording. Safe to
// call multiple times and on empty recordings.
func (r *Recording) Discard() error {
	if r == nil || r.Path == "" {
		return nil
	}
	path := r.Path
	r.Path = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	assemblyAIStreamURL = "wss://streaming.assemblyai.com/v3/ws"
	providerAssemblyAI  = "assemblyai"

	// audioChunkMs is the duration of audio per websocket frame.
	audioChunkMs = 100
)

// StreamingTranscriber implements Transcriber against AssemblyAI's
// realtime websocket API. One websocket session is opened per
// transcription; the check-in flow transcribes at most two short
// recordings per incident, so connection reuse is not worth the
// session-state bookkeeping.
type StreamingTranscriber struct {
	config  *Config
	logger  *slog.Logger
	baseURL string

	// dial is swappable for tests.
	dial func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)
}

// NewStreamingTranscriber creates a websocket streaming transcriber.
func NewStreamingTranscriber(opts ...Option) (*StreamingTranscriber, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = assemblyAIStreamURL
	}

	return &StreamingTranscriber{
		config:  cfg,
		logger:  cfg.Logger.With("component", "speech.transcriber"),
		baseURL: baseURL,
		dial: func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
			return conn, err
		},
	}, nil
}

// turnMessage is a partial or final transcript for one utterance.
type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
}

// Transcribe streams the recording over the websocket and accumulates
// the returned transcript until the session terminates.
func (t *StreamingTranscriber) Transcribe(ctx context.Context, rec *Recording) (string, error) {
	if rec.Empty() {
		return "", WrapError(providerAssemblyAI, ErrEmptyRecording)
	}

	sampleRate := rec.SampleRate
	if sampleRate == 0 {
		sampleRate = t.config.SampleRate
	}

	url := fmt.Sprintf("%s?sample_rate=%d&encoding=pcm_s16le", t.baseURL, sampleRate)
	header := http.Header{}
	header.Set("Authorization", t.config.APIKey)

	conn, err := t.dial(ctx, url, header)
	if err != nil {
		return "", WrapError(providerAssemblyAI, fmt.Errorf("dial: %w", err))
	}
	defer conn.Close()

	deadline := time.Now().Add(t.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	if err := t.sendAudio(conn, rec.Audio, sampleRate); err != nil {
		return "", err
	}

	transcript, err := t.collect(conn)
	if err != nil {
		return "", err
	}

	transcript = strings.ToLower(strings.TrimSpace(transcript))
	t.logger.Debug("transcription complete",
		"bytes", len(rec.Audio),
		"chars", len(transcript),
	)
	return transcript, nil
}

// sendAudio writes the PCM in fixed-duration chunks, then signals
// session termination.
func (t *StreamingTranscriber) sendAudio(conn *websocket.Conn, audio []byte, sampleRate int) error {
	chunkBytes := sampleRate * 2 * audioChunkMs / 1000 // PCM16 mono
	for off := 0; off < len(audio); off += chunkBytes {
		end := off + chunkBytes
		if end > len(audio) {
			end = len(audio)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[off:end]); err != nil {
			return WrapError(providerAssemblyAI, fmt.Errorf("send audio: %w", err))
		}
	}

	terminate, _ := json.Marshal(map[string]string{"type": "Terminate"})
	if err := conn.WriteMessage(websocket.TextMessage, terminate); err != nil {
		return WrapError(providerAssemblyAI, fmt.Errorf("terminate session: %w", err))
	}
	return nil
}

// collect reads turn messages until the server terminates the session,
// concatenating finalized turns.
func (t *StreamingTranscriber) collect(conn *websocket.Conn) (string, error) {
	var parts []string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Normal closure after Termination still surfaces as an
			// error from ReadMessage; return what we have.
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return strings.Join(parts, " "), nil
			}
			return "", WrapError(providerAssemblyAI, fmt.Errorf("read: %w", err))
		}

		var msg turnMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // ignore unknown frames
		}

		switch msg.Type {
		case "Turn":
			if msg.EndOfTurn && msg.Transcript != "" {
				parts = append(parts, msg.Transcript)
			}
		case "Termination":
			return strings.Join(parts, " "), nil
		case "Error":
			return "", WrapError(providerAssemblyAI, fmt.Errorf("server error: %s", string(data)))
		}
	}
}

// Verify StreamingTranscriber implements Transcriber at compile time.
var _ Transcriber = (*StreamingTranscriber)(nil)

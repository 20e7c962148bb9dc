package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// Player delivers PCM16 mono audio to the output device, blocking until
// playback completes. The device binding lives behind this interface so
// the synthesizer can be tested without audio hardware.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// PlayerFunc adapts a plain function to the Player interface.
type PlayerFunc func(ctx context.Context, pcm []byte, sampleRate int) error

// Play implements Player.
func (f PlayerFunc) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	return f(ctx, pcm, sampleRate)
}

// ElevenLabs implements Synthesizer using the ElevenLabs TTS API.
// Synthesized audio is handed to the configured Player for output.
type ElevenLabs struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
	player  Player
}

// NewElevenLabs creates a new ElevenLabs synthesizer.
func NewElevenLabs(player Player, opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}
	if player == nil {
		return nil, WrapError(providerElevenLabs, ErrDeviceUnavailable)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger.With("component", "speech.elevenlabs"),
		baseURL: baseURL,
		player:  player,
	}, nil
}

// Speak synthesizes text and plays it through the configured Player.
func (e *ElevenLabs) Speak(ctx context.Context, text string) error {
	start := time.Now()

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=pcm_%d",
		e.baseURL, e.config.VoiceID, e.config.SampleRate)

	payload := map[string]any{
		"text":     text,
		"model_id": e.config.ModelID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return WrapError(providerElevenLabs, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := e.doWithRetry(ctx, req, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return e.parseError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return WrapError(providerElevenLabs, fmt.Errorf("read response: %w", err))
	}

	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", time.Since(start).Milliseconds(),
		"model", e.config.ModelID,
	)

	if err := e.player.Play(ctx, audio, e.config.SampleRate); err != nil {
		return WrapError(providerElevenLabs, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
	}
	return nil
}

// doWithRetry retries rate-limited and server-side failures with a flat
// delay. The request body is rewound for each attempt.
func (e *ElevenLabs) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerElevenLabs, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			apiErr := e.parseError(resp)
			resp.Body.Close()
			lastErr = apiErr
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// parseError converts an error response into an APIError.
func (e *ElevenLabs) parseError(resp *http.Response) error {
	var apiResp struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	msg := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err == nil && apiResp.Detail.Message != "" {
		msg = apiResp.Detail.Message
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Provider:   providerElevenLabs,
	}
}

// Verify ElevenLabs implements Synthesizer at compile time.
var _ Synthesizer = (*ElevenLabs)(nil)

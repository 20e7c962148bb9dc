// Package checkin runs the bounded voice check-in that follows a
// confirmed fall: speak a prompt, listen for a reply, classify it, and
// retry once on silence.
//
// The controller never panics and never blocks unbounded. Every audio
// failure degrades to the same path as silence, so the worst outcome of
// a broken microphone is an escalation, never a missed one.
package checkin

import (
	"context"
	"log/slog"
	"time"

	"github.com/vigil-labs/go-vigil/pkg/speech"
)

// Response is the outcome of a check-in session.
type Response int

const (
	// Safe means the user verbally confirmed they are okay.
	Safe Response = iota

	// HelpNeeded means the user verbally requested help.
	HelpNeeded

	// NoResponse means the user did not respond within the timeout
	// windows, or the audio pipeline failed. Callers treat HelpNeeded
	// and NoResponse identically: both escalate.
	NoResponse
)

// String returns the wire/log name of the response.
func (r Response) String() string {
	switch r {
	case Safe:
		return "safe"
	case HelpNeeded:
		return "help_needed"
	case NoResponse:
		return "no_response"
	default:
		return "unknown"
	}
}

// Prompts spoken during the check-in sequence.
const (
	promptFirst = "I noticed you may have fallen. Are you okay? " +
		"Please say 'I'm fine' if you are safe, or say 'help' if you need assistance."
	promptSecond = "I did not hear a response. " +
		"Please say 'I'm fine' if you are okay, or say 'help' if you need assistance."
	ackSafe = "Okay, I'm glad you're safe. I'll continue monitoring."
	ackHelp = "Okay, I'm contacting your emergency contacts now. Help is on the way."
	ackNone = "I'm going to contact your emergency contacts now. Help is on the way."
)

// Config holds check-in timing.
type Config struct {
	// Timeout is how long to listen after the first prompt.
	Timeout time.Duration

	// SecondChance is how long to listen after the follow-up prompt.
	// Only reached when the first listen yields silence.
	SecondChance time.Duration

	// Logger for check-in progress. Defaults to slog.Default().
	Logger *slog.Logger
}

// Controller runs check-in sessions over an injected voice stack.
// It must only ever be invoked from the dedicated voice goroutine; the
// audio subsystems behind the interfaces are not reentrant.
type Controller struct {
	synth    speech.Synthesizer
	listener speech.Listener
	scribe   speech.Transcriber
	cfg      Config
	logger   *slog.Logger
}

// New creates a check-in controller.
func New(synth speech.Synthesizer, listener speech.Listener, scribe speech.Transcriber, cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		synth:    synth,
		listener: listener,
		scribe:   scribe,
		cfg:      cfg,
		logger:   logger.With("component", "checkin"),
	}
}

// Run executes a full check-in sequence and returns the final response.
//
// Decision tree:
//
//	First prompt
//	├── Safe        → acknowledge, return Safe
//	├── HelpNeeded  → acknowledge, return HelpNeeded (no second prompt)
//	└── NoResponse  → second prompt
//	                  ├── Safe        → acknowledge, return Safe
//	                  ├── HelpNeeded  → acknowledge, return HelpNeeded
//	                  └── NoResponse  → speak escalation notice, return NoResponse
//
// Run always terminates within Timeout + SecondChance plus per-step
// synthesis overhead, regardless of listen outcomes.
func (c *Controller) Run(ctx context.Context) Response {
	c.logger.Info("starting fall check-in sequence")

	response := c.step(ctx, promptFirst, c.cfg.Timeout)
	c.logger.Info("first prompt response", "response", response.String())

	if response == NoResponse {
		response = c.step(ctx, promptSecond, c.cfg.SecondChance)
		c.logger.Info("second prompt response", "response", response.String())
	}

	switch response {
	case Safe:
		c.speak(ctx, ackSafe)
	case HelpNeeded:
		c.speak(ctx, ackHelp)
	default:
		c.logger.Warn("no response after two prompts, escalating")
		c.speak(ctx, ackNone)
	}
	return response
}

// step speaks one prompt and classifies the reply. Any failure along
// the way (device error, transcription error) degrades to NoResponse,
// which is exactly how silence is handled.
func (c *Controller) step(ctx context.Context, prompt string, timeout time.Duration) Response {
	// A failed prompt means the user never heard the question; treat
	// the whole step as a timeout rather than listening to dead air.
	if err := c.synth.Speak(ctx, prompt); err != nil {
		c.logger.Error("prompt synthesis failed, treating step as timeout", "error", err)
		return NoResponse
	}

	listenCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	rec, err := c.listener.Listen(listenCtx, timeout)
	if err != nil {
		c.logger.Error("listen failed, treating step as timeout", "error", err)
		return NoResponse
	}
	// The temp artifact is removed on every exit path below.
	defer func() {
		if err := rec.Discard(); err != nil {
			c.logger.Warn("failed to remove audio artifact", "error", err)
		}
	}()

	if rec.Empty() {
		return NoResponse
	}

	transcript, err := c.scribe.Transcribe(ctx, rec)
	if err != nil {
		c.logger.Error("transcription failed, treating as empty transcript", "error", err)
		return NoResponse
	}
	c.logger.Info("transcript", "text", transcript)

	return ClassifyTranscript(transcript)
}

// speak delivers an acknowledgement, best effort. A failure here does
// not change the outcome of the session.
func (c *Controller) speak(ctx context.Context, text string) {
	if err := c.synth.Speak(ctx, text); err != nil {
		c.logger.Error("acknowledgement synthesis failed", "error", err)
	}
}

package speech

import (
	"context"
	"sync"
	"time"
)

// Mock implements Synthesizer, Listener and Transcriber for testing.
// All methods can be customized via function fields.
type Mock struct {
	// SpeakFunc is called when Speak is invoked.
	// If nil, Speak succeeds immediately.
	SpeakFunc func(ctx context.Context, text string) error

	// ListenFunc is called when Listen is invoked.
	// If nil, Listen returns an empty recording (silence).
	ListenFunc func(ctx context.Context, duration time.Duration) (*Recording, error)

	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, Transcribe returns an empty transcript.
	TranscribeFunc func(ctx context.Context, rec *Recording) (string, error)

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a mock voice stack that hears only silence.
func NewMock() *Mock {
	return &Mock{}
}

// ScriptedMock returns a mock whose successive Listen/Transcribe pairs
// yield the given transcripts in order. An empty string scripts a
// silent listen. Once the script is exhausted, silence follows.
func ScriptedMock(transcripts ...string) *Mock {
	var mu sync.Mutex
	i := 0
	m := &Mock{}
	m.ListenFunc = func(ctx context.Context, duration time.Duration) (*Recording, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(transcripts) || transcripts[i] == "" {
			i++
			return &Recording{}, nil // silence
		}
		return &Recording{Audio: []byte{0}, SampleRate: 16000}, nil
	}
	m.TranscribeFunc = func(ctx context.Context, rec *Recording) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(transcripts) {
			return "", nil
		}
		text := transcripts[i]
		i++
		return text, nil
	}
	return m
}

// Speak calls SpeakFunc and records the call.
func (m *Mock) Speak(ctx context.Context, text string) error {
	m.recordCall("Speak", text)
	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, text)
	}
	return nil
}

// Listen calls ListenFunc and records the call.
func (m *Mock) Listen(ctx context.Context, duration time.Duration) (*Recording, error) {
	m.recordCall("Listen", "")
	if m.ListenFunc != nil {
		return m.ListenFunc(ctx, duration)
	}
	return &Recording{}, nil
}

// Transcribe calls TranscribeFunc and records the call.
func (m *Mock) Transcribe(ctx context.Context, rec *Recording) (string, error) {
	m.recordCall("Transcribe", "")
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, rec)
	}
	return "", nil
}

// recordCall adds a call to the tracking list.
func (m *Mock) recordCall(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Text:   text,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Spoken returns the text of every Speak call, in order.
func (m *Mock) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if c.Method == "Speak" {
			out = append(out, c.Text)
		}
	}
	return out
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock whose every operation fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SpeakFunc: func(ctx context.Context, text string) error {
			return err
		},
		ListenFunc: func(ctx context.Context, duration time.Duration) (*Recording, error) {
			return nil, err
		},
		TranscribeFunc: func(ctx context.Context, rec *Recording) (string, error) {
			return "", err
		},
	}
}

// Verify Mock implements the voice contracts at compile time.
var (
	_ Synthesizer = (*Mock)(nil)
	_ Listener    = (*Mock)(nil)
	_ Transcriber = (*Mock)(nil)
)

// Package monitor coordinates the fall-response pipeline: classified
// frames in, confirmation folding, voice check-in, alert escalation,
// and the durable event record. All detection state lives on a single
// control goroutine; all voice-affine work runs on a single executor
// goroutine. Nothing in this package talks to hardware directly.
package monitor

import (
	"context"
	"errors"
	"log/slog"
)

// ErrExecutorStopped is returned for work submitted after the executor
// has shut down.
var ErrExecutorStopped = errors.New("monitor: voice executor stopped")

// Executor serializes voice-affine work onto one goroutine. Audio
// devices and the telephony client tolerate exactly one caller at a
// time, so check-ins, acknowledgements, and alert calls all funnel
// through here; two voice operations can never interleave.
type Executor struct {
	tasks  chan voiceTask
	done   chan struct{}
	logger *slog.Logger
}

type voiceTask struct {
	fn       func(context.Context)
	finished chan struct{}
}

// NewExecutor creates a stopped executor; call Run to start it.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		tasks:  make(chan voiceTask),
		done:   make(chan struct{}),
		logger: logger.With("component", "monitor.executor"),
	}
}

// Run processes submitted work until ctx is cancelled. It must be
// called exactly once, in its own goroutine.
func (e *Executor) Run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-e.tasks:
			task.fn(ctx)
			close(task.finished)
		}
	}
}

// Do submits fn and blocks until it has run to completion. If the
// executor stops, or ctx is cancelled before fn is accepted, the work
// never runs and the context or stop error is returned.
func (e *Executor) Do(ctx context.Context, fn func(context.Context)) error {
	task := voiceTask{fn: fn, finished: make(chan struct{})}

	select {
	case e.tasks <- task:
	case <-e.done:
		return ErrExecutorStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-task.finished:
		return nil
	case <-e.done:
		// The executor's context was cancelled mid-task; the task
		// function saw the same cancellation.
		return ErrExecutorStopped
	}
}

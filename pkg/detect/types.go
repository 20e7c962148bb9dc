// Package detect turns a noisy stream of per-frame fall classifications
// into a discrete detection state.
//
// The heavy lifting (pose landmarks, feature engineering, the trained
// model) lives outside this process. This package consumes the
// classifier's output (a label and a confidence) and debounces it
// over time so that a single noisy frame never triggers an emergency
// response, while a sustained high-confidence run always does.
package detect

import "time"

// Label is the classifier's verdict for a single frame.
type Label string

const (
	LabelNormal   Label = "normal"
	LabelNearFall Label = "near_fall"
	LabelFall     Label = "fall"
)

// Frame is one classified pose frame. Frames are ephemeral: they are
// folded into the confirmation machine and then discarded.
type Frame struct {
	// Timestamp is when the frame was captured. Frames with
	// non-monotonic timestamps are ignored by the orchestrator.
	Timestamp time.Time

	// Features is the opaque feature vector the classifier consumed.
	// Kept only for clip annotation; never interpreted here.
	Features []float64

	// Label is the classifier's verdict.
	Label Label

	// Confidence is the classifier's confidence in [0, 1].
	Confidence float64
}

// State is the discrete detection state.
//
// Monitoring through FallConfirmed are produced by the confirmation
// machine. Assessing and PostAlert are owned by the orchestrator, which
// layers the check-in/escalation lifecycle on top.
type State int

const (
	StateMonitoring State = iota
	StateConfirming
	StateNearFall
	StateFallConfirmed
	StateAssessing
	StatePostAlert
)

// String returns the wire/log name of the state.
func (s State) String() string {
	switch s {
	case StateMonitoring:
		return "monitoring"
	case StateConfirming:
		return "confirming"
	case StateNearFall:
		return "near_fall"
	case StateFallConfirmed:
		return "fall_confirmed"
	case StateAssessing:
		return "assessing"
	case StatePostAlert:
		return "post_alert"
	default:
		return "unknown"
	}
}

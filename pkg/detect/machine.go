package detect

import (
	"errors"
	"fmt"
)

// Thresholds holds the tunable constants for fall confirmation.
// NearFall < Fall must hold; the consecutive-frame requirements are
// capped by Window so a qualifying run always fits inside it.
type Thresholds struct {
	// NearFall is C1: confidence at or above this leaves Monitoring.
	NearFall float64

	// Fall is C2: confidence at or above this counts toward a
	// confirmed fall.
	Fall float64

	// Window is W: the number of recent frames a qualifying run must
	// fit inside. FallCount and NearFallCount may not exceed it.
	Window int

	// FallCount is D: consecutive frames at or above Fall required to
	// confirm a fall.
	FallCount int

	// NearFallCount is M: consecutive frames in [NearFall, Fall)
	// required to raise a near-fall.
	NearFallCount int

	// Debounce is K: consecutive frames below NearFall required to
	// return to Monitoring from Confirming or NearFall.
	Debounce int
}

// DefaultThresholds returns the tuning used in live deployments.
// All values are configuration, not policy; see internal/config.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NearFall:      0.5,
		Fall:          0.85,
		Window:        5,
		FallCount:     5,
		NearFallCount: 3,
		Debounce:      10,
	}
}

// Validate checks threshold ordering and window bounds.
func (t Thresholds) Validate() error {
	if t.NearFall < 0 || t.NearFall > 1 || t.Fall < 0 || t.Fall > 1 {
		return errors.New("detect: thresholds must be within [0, 1]")
	}
	if t.NearFall >= t.Fall {
		return fmt.Errorf("detect: near-fall threshold %.2f must be below fall threshold %.2f", t.NearFall, t.Fall)
	}
	if t.Window < 1 {
		return errors.New("detect: window must be at least 1")
	}
	if t.FallCount < 1 || t.FallCount > t.Window {
		return fmt.Errorf("detect: fall count %d must be in [1, window=%d]", t.FallCount, t.Window)
	}
	if t.NearFallCount < 1 || t.NearFallCount > t.Window {
		return fmt.Errorf("detect: near-fall count %d must be in [1, window=%d]", t.NearFallCount, t.Window)
	}
	if t.Debounce < 1 {
		return errors.New("detect: debounce must be at least 1")
	}
	return nil
}

// Machine is the confirmation state machine. It folds per-frame
// classifications into one of Monitoring, Confirming, NearFall or
// FallConfirmed.
//
// FallConfirmed is terminal: the machine holds it until Reset is called
// by whoever handled the incident. The machine itself is not safe for
// concurrent use; it is owned by the orchestrator's control goroutine.
type Machine struct {
	thresholds Thresholds
	state      State

	// Consecutive-run counters over the incoming frame stream.
	highRun int // frames with confidence >= Fall
	midRun  int // frames with confidence in [NearFall, Fall)
	lowRun  int // frames with confidence < NearFall

	onTransition func(from, to State)
}

// NewMachine creates a confirmation machine with the given thresholds.
func NewMachine(t Thresholds) (*Machine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Machine{thresholds: t, state: StateMonitoring}, nil
}

// OnTransition registers a hook invoked once per state change, with the
// old and new state. Used by the orchestrator to emit near-fall and
// fall events exactly once per transition.
func (m *Machine) OnTransition(fn func(from, to State)) {
	m.onTransition = fn
}

// State returns the current detection state.
func (m *Machine) State() State {
	return m.state
}

// Observe folds one classified frame into the machine and returns the
// resulting state. The label is advisory; confirmation is driven by
// confidence alone so that a miscalibrated label can never suppress a
// sustained high-confidence run.
func (m *Machine) Observe(label Label, confidence float64) State {
	if m.state == StateFallConfirmed {
		// Terminal until Reset; downstream handling owns the incident.
		return m.state
	}

	m.count(confidence)

	switch m.state {
	case StateMonitoring:
		if confidence >= m.thresholds.NearFall {
			m.transition(StateConfirming)
		}

	case StateConfirming:
		switch {
		case m.highRun >= m.thresholds.FallCount:
			m.transition(StateFallConfirmed)
		case m.midRun >= m.thresholds.NearFallCount:
			m.transition(StateNearFall)
		case m.lowRun >= m.thresholds.Debounce:
			m.transition(StateMonitoring)
			m.resetRuns()
		}

	case StateNearFall:
		switch {
		case m.highRun >= m.thresholds.FallCount:
			m.transition(StateFallConfirmed)
		case m.lowRun >= m.thresholds.Debounce:
			m.transition(StateMonitoring)
			m.resetRuns()
		}
	}

	return m.state
}

// Reset returns the machine to Monitoring and clears all history.
// Called by the orchestrator once an incident concludes.
func (m *Machine) Reset() {
	if m.state != StateMonitoring {
		m.transition(StateMonitoring)
	}
	m.resetRuns()
}

// count updates the consecutive-run counters for one frame. Runs are
// capped at Window so a qualifying run always fits inside it.
func (m *Machine) count(confidence float64) {
	switch {
	case confidence >= m.thresholds.Fall:
		m.highRun++
		m.midRun = 0
		m.lowRun = 0
	case confidence >= m.thresholds.NearFall:
		m.midRun++
		m.highRun = 0
		m.lowRun = 0
	default:
		m.lowRun++
		m.highRun = 0
		m.midRun = 0
	}
	if m.highRun > m.thresholds.Window {
		m.highRun = m.thresholds.Window
	}
	if m.midRun > m.thresholds.Window {
		m.midRun = m.thresholds.Window
	}
}

func (m *Machine) resetRuns() {
	m.highRun = 0
	m.midRun = 0
	m.lowRun = 0
}

func (m *Machine) transition(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
}

package monitor

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vigil-labs/go-vigil/pkg/alert"
	"github.com/vigil-labs/go-vigil/pkg/checkin"
	"github.com/vigil-labs/go-vigil/pkg/detect"
	"github.com/vigil-labs/go-vigil/pkg/eventlog"
)

// Assessor runs one bounded check-in conversation with the monitored
// person and reports the outcome.
type Assessor interface {
	Run(ctx context.Context) checkin.Response
}

// Alerter escalates a confirmed emergency to the configured contacts.
type Alerter interface {
	Dispatch(ctx context.Context, contacts []alert.Contact, userName string, testMode bool) []alert.Result
}

// Notification is delivered to the OnChange callback once per state
// transition. Event is the log entry that accompanied the transition,
// when one did.
type Notification struct {
	From  detect.State
	To    detect.State
	Event *eventlog.Event
}

// Config tunes the orchestrator.
type Config struct {
	// UserName is the monitored person's name, spoken in alert calls.
	UserName string

	// Contacts are the emergency contacts, in escalation order.
	Contacts []alert.Contact

	// TestMode marks all alert calls as tests.
	TestMode bool

	// QueueSize bounds the frame queue. When full, the oldest queued
	// frame is dropped. Defaults to 64.
	QueueSize int

	// Cooldown is how long after an incident resolves before frames
	// are folded again. Defaults to 30s.
	Cooldown time.Duration

	// ClipDir is where pre-fall clips are written. Empty disables
	// clip capture.
	ClipDir string

	// ClipWindow is how much pre-fall footage to retain. Defaults
	// to 10s.
	ClipWindow time.Duration

	// Thresholds tunes the confirmation machine. The zero value
	// selects detect.DefaultThresholds.
	Thresholds detect.Thresholds

	// OnChange, when set, is invoked from the control goroutine once
	// per state transition. It must not block.
	OnChange func(Notification)

	Logger *slog.Logger
}

// Orchestrator owns the detection state and drives the incident
// lifecycle. All state mutation happens on the control goroutine
// inside Run; producers only Offer frames, and the web layer only
// reads snapshots or submits dismiss/test requests.
type Orchestrator struct {
	cfg      Config
	machine  *detect.Machine
	log      *eventlog.Log
	clips    *eventlog.ClipBuffer
	assessor Assessor
	alerter  Alerter
	exec     *Executor

	frames     chan detect.Frame
	dismissCh  chan chan bool
	assessDone chan assessment
	stopped    chan struct{}

	// Snapshot fields, readable from any goroutine.
	state     atomic.Int32
	since     atomic.Int64
	dropped   atomic.Int64
	processed atomic.Int64

	// Control-goroutine-only fields.
	cur           detect.State
	lastFrame     time.Time
	curFrame      detect.Frame
	cooldownUntil time.Time
	incidentNoted bool
	pendingEvent  *eventlog.Event

	logger *slog.Logger
}

type assessment struct {
	response checkin.Response
	results  []alert.Result
	err      error
}

// New creates an orchestrator. The event log must already be open;
// the assessor and alerter are invoked only from the voice executor.
func New(cfg Config, log *eventlog.Log, assessor Assessor, alerter Alerter) (*Orchestrator, error) {
	if cfg.Thresholds == (detect.Thresholds{}) {
		cfg.Thresholds = detect.DefaultThresholds()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ClipWindow <= 0 {
		cfg.ClipWindow = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	for _, c := range cfg.Contacts {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	machine, err := detect.NewMachine(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:        cfg,
		machine:    machine,
		log:        log,
		assessor:   assessor,
		alerter:    alerter,
		exec:       NewExecutor(cfg.Logger),
		frames:     make(chan detect.Frame, cfg.QueueSize),
		dismissCh:  make(chan chan bool),
		assessDone: make(chan assessment, 1),
		stopped:    make(chan struct{}),
		logger:     cfg.Logger.With("component", "monitor"),
	}
	if cfg.ClipDir != "" {
		o.clips = eventlog.NewClipBuffer(cfg.ClipWindow)
	}

	machine.OnTransition(o.onMachineTransition)
	return o, nil
}

// Run is the control loop. It blocks until ctx is cancelled and must
// be called exactly once.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.stopped)

	go o.exec.Run(ctx)

	o.log.Append(eventlog.TypeSystem, map[string]string{"note": "monitoring started"})
	o.logger.Info("monitoring started",
		"contacts", len(o.cfg.Contacts),
		"queue_size", o.cfg.QueueSize,
		"test_mode", o.cfg.TestMode,
	)

	for {
		select {
		case <-ctx.Done():
			o.log.Append(eventlog.TypeSystem, map[string]string{"note": "monitoring stopped"})
			return

		case frame := <-o.frames:
			o.handleFrame(ctx, frame)

		case reply := <-o.dismissCh:
			reply <- o.handleDismiss()

		case result := <-o.assessDone:
			o.finishAssessment(result)
		}
	}
}

// Offer queues one classified frame. When the queue is full the oldest
// queued frame is dropped so the stream always reflects the present.
// Safe to call from any goroutine; never blocks.
func (o *Orchestrator) Offer(frame detect.Frame) {
	for {
		select {
		case o.frames <- frame:
			return
		default:
		}
		select {
		case <-o.frames:
			o.dropped.Add(1)
		default:
		}
	}
}

// ClipFrame feeds one encoded camera frame to the pre-fall clip
// buffer. A no-op when clip capture is disabled.
func (o *Orchestrator) ClipFrame(ts time.Time, jpeg []byte) {
	if o.clips != nil {
		o.clips.Add(ts, jpeg)
	}
}

// Dismiss acknowledges a completed incident and returns monitoring to
// normal. Idempotent: dismissing when no alert is active is a no-op
// and reports false.
func (o *Orchestrator) Dismiss() bool {
	reply := make(chan bool, 1)
	select {
	case o.dismissCh <- reply:
		return <-reply
	case <-o.stopped:
		return false
	}
}

// TestAlert runs a full alert dispatch with the test marker set. It
// uses the voice executor like a real escalation but never touches the
// detection state.
func (o *Orchestrator) TestAlert(ctx context.Context) ([]alert.Result, error) {
	var results []alert.Result
	err := o.exec.Do(ctx, func(ctx context.Context) {
		results = o.alerter.Dispatch(ctx, o.cfg.Contacts, o.cfg.UserName, true)
	})
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		o.log.Append(eventlog.TypeAlertResult, alertMetadata(r, true))
	}
	return results, nil
}

// State returns the current detection state. Safe from any goroutine.
func (o *Orchestrator) State() detect.State {
	return detect.State(o.state.Load())
}

// Status is a point-in-time snapshot for the dashboard.
type Status struct {
	State           string    `json:"state"`
	Since           time.Time `json:"since"`
	QueueDepth      int       `json:"queue_depth"`
	ProcessedFrames int64     `json:"processed_frames"`
	DroppedFrames   int64     `json:"dropped_frames"`
	Events          int       `json:"events"`
	TestMode        bool      `json:"test_mode"`
	Contacts        int       `json:"contacts"`
}

// Status returns a snapshot of the orchestrator.
func (o *Orchestrator) Status() Status {
	return Status{
		State:           detect.State(o.state.Load()).String(),
		Since:           time.UnixMilli(o.since.Load()),
		QueueDepth:      len(o.frames),
		ProcessedFrames: o.processed.Load(),
		DroppedFrames:   o.dropped.Load(),
		Events:          o.log.Len(),
		TestMode:        o.cfg.TestMode,
		Contacts:        len(o.cfg.Contacts),
	}
}

// handleFrame folds one frame. Runs on the control goroutine only.
func (o *Orchestrator) handleFrame(ctx context.Context, frame detect.Frame) {
	o.processed.Add(1)

	if !frame.Timestamp.IsZero() {
		if frame.Timestamp.Before(o.lastFrame) {
			o.logger.Debug("ignoring out-of-order frame", "ts", frame.Timestamp)
			return
		}
		o.lastFrame = frame.Timestamp
	}

	switch o.cur {
	case detect.StateAssessing, detect.StatePostAlert:
		// The incident is already being handled. Frames still drain,
		// and a sustained fall signal is recorded once so the history
		// shows the person was still down, but no second assessment
		// ever starts.
		if frame.Confidence >= o.cfg.Thresholds.Fall && !o.incidentNoted {
			o.incidentNoted = true
			o.log.Append(eventlog.TypeSystem, map[string]string{
				"note":       "fall signal during active incident",
				"confidence": formatConfidence(frame.Confidence),
			})
		}
		return
	}

	if time.Now().Before(o.cooldownUntil) {
		return
	}

	o.curFrame = frame
	o.machine.Observe(frame.Label, frame.Confidence)

	if o.machine.State() == detect.StateFallConfirmed {
		o.startAssessment(ctx)
	}
}

// onMachineTransition runs inside Observe/Reset, on the control
// goroutine. It records the events that accompany machine transitions
// and forwards every transition to the notification callback.
func (o *Orchestrator) onMachineTransition(_, to detect.State) {
	switch to {
	case detect.StateNearFall:
		ev, err := o.log.Append(eventlog.TypeNearFall, map[string]string{
			"confidence": formatConfidence(o.curFrame.Confidence),
		})
		if err != nil {
			o.logger.Error("failed to record near-fall", "error", err)
		} else {
			o.pendingEvent = &ev
		}

	case detect.StateFallConfirmed:
		clip := ""
		if o.clips != nil {
			var err error
			clip, err = o.clips.Flush(o.cfg.ClipDir)
			if err != nil {
				o.logger.Error("failed to save fall clip", "error", err)
			}
		}
		ev, err := o.log.AppendClip(eventlog.TypeFall, map[string]string{
			"confidence": formatConfidence(o.curFrame.Confidence),
			"label":      string(o.curFrame.Label),
		}, clip)
		if err != nil {
			o.logger.Error("failed to record fall", "error", err)
		} else {
			o.pendingEvent = &ev
		}
	}

	o.setState(to)
}

// startAssessment begins the check-in lifecycle for a confirmed fall.
func (o *Orchestrator) startAssessment(ctx context.Context) {
	o.incidentNoted = false
	o.setState(detect.StateAssessing)

	go func() {
		var result assessment
		result.err = o.exec.Do(ctx, func(ctx context.Context) {
			result.response = o.assessor.Run(ctx)
			if result.response != checkin.Safe {
				result.results = o.alerter.Dispatch(ctx, o.cfg.Contacts, o.cfg.UserName, o.cfg.TestMode)
			}
		})
		select {
		case o.assessDone <- result:
		case <-ctx.Done():
		}
	}()
}

// finishAssessment applies the check-in outcome. Runs on the control
// goroutine only.
func (o *Orchestrator) finishAssessment(result assessment) {
	if result.err != nil {
		// Shutdown race; the incident outcome is unknowable now.
		o.logger.Warn("assessment aborted", "error", result.err)
		return
	}

	outcome, err := o.log.Append(eventlog.TypeAssessmentOutcome, map[string]string{
		"outcome": result.response.String(),
	})
	if err != nil {
		o.logger.Error("failed to record assessment outcome", "error", err)
	}

	if result.response == checkin.Safe {
		o.logger.Info("check-in resolved safe, resuming monitoring")
		o.pendingEvent = &outcome
		o.machine.Reset()
		o.cooldownUntil = time.Now().Add(o.cfg.Cooldown)
		return
	}

	for _, r := range result.results {
		if _, err := o.log.Append(eventlog.TypeAlertResult, alertMetadata(r, o.cfg.TestMode)); err != nil {
			o.logger.Error("failed to record alert result", "error", err)
		}
	}
	o.pendingEvent = &outcome
	o.setState(detect.StatePostAlert)
}

// handleDismiss acknowledges an active alert. Runs on the control
// goroutine only.
func (o *Orchestrator) handleDismiss() bool {
	if o.cur != detect.StatePostAlert {
		return false
	}

	ev, err := o.log.Append(eventlog.TypeSystem, map[string]string{"note": "alert dismissed"})
	if err != nil {
		o.logger.Error("failed to record dismissal", "error", err)
	} else {
		o.pendingEvent = &ev
	}

	o.machine.Reset()
	o.cooldownUntil = time.Now().Add(o.cfg.Cooldown)
	o.logger.Info("alert dismissed, resuming monitoring")
	return true
}

// setState applies a transition and fires the notification callback.
// Runs on the control goroutine only.
func (o *Orchestrator) setState(to detect.State) {
	from := o.cur
	if from == to {
		o.pendingEvent = nil
		return
	}
	o.cur = to
	o.state.Store(int32(to))
	o.since.Store(time.Now().UnixMilli())

	ev := o.pendingEvent
	o.pendingEvent = nil

	o.logger.Info("state changed", "from", from.String(), "to", to.String())
	if o.cfg.OnChange != nil {
		o.cfg.OnChange(Notification{From: from, To: to, Event: ev})
	}
}

func alertMetadata(r alert.Result, testMode bool) map[string]string {
	m := map[string]string{
		"action":  r.Action,
		"success": strconv.FormatBool(r.Success),
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if testMode {
		m["test_mode"] = "true"
	}
	return m
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 3, 64)
}

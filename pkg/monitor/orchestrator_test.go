package monitor_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vigil-labs/go-vigil/pkg/alert"
	"github.com/vigil-labs/go-vigil/pkg/checkin"
	"github.com/vigil-labs/go-vigil/pkg/detect"
	"github.com/vigil-labs/go-vigil/pkg/eventlog"
	"github.com/vigil-labs/go-vigil/pkg/monitor"
)

// gateAssessor blocks each check-in until released, so tests can
// observe the assessing window.
type gateAssessor struct {
	release chan checkin.Response
	started chan struct{}
	calls   atomic.Int32
}

func newGateAssessor() *gateAssessor {
	return &gateAssessor{
		release: make(chan checkin.Response),
		started: make(chan struct{}, 8),
	}
}

func (a *gateAssessor) Run(ctx context.Context) checkin.Response {
	a.calls.Add(1)
	a.started <- struct{}{}
	select {
	case r := <-a.release:
		return r
	case <-ctx.Done():
		return checkin.NoResponse
	}
}

// instantAssessor returns a fixed response immediately.
type instantAssessor struct {
	response checkin.Response
	calls    atomic.Int32
}

func (a *instantAssessor) Run(ctx context.Context) checkin.Response {
	a.calls.Add(1)
	return a.response
}

// fakeAlerter records dispatches and fabricates contact+1 results.
type fakeAlerter struct {
	mu        sync.Mutex
	calls     int
	testModes []bool
}

func (f *fakeAlerter) Dispatch(ctx context.Context, contacts []alert.Contact, userName string, testMode bool) []alert.Result {
	f.mu.Lock()
	f.calls++
	f.testModes = append(f.testModes, testMode)
	f.mu.Unlock()

	results := make([]alert.Result, 0, len(contacts)+1)
	for _, c := range contacts {
		results = append(results, alert.Result{
			Action:    fmt.Sprintf("Call to %s (%s)", c.Name, c.Phone),
			Success:   true,
			Timestamp: time.Now(),
		})
	}
	return append(results, alert.Result{
		Action:    "Mock dispatch to emergency services",
		Success:   true,
		Timestamp: time.Now(),
	})
}

func (f *fakeAlerter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// notifications collects OnChange callbacks thread-safely.
type notifications struct {
	mu   sync.Mutex
	list []monitor.Notification
}

func (n *notifications) record(note monitor.Notification) {
	n.mu.Lock()
	n.list = append(n.list, note)
	n.mu.Unlock()
}

func (n *notifications) all() []monitor.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]monitor.Notification, len(n.list))
	copy(out, n.list)
	return out
}

func testThresholds() detect.Thresholds {
	return detect.Thresholds{
		NearFall:      0.5,
		Fall:          0.85,
		Window:        3,
		FallCount:     3,
		NearFallCount: 2,
		Debounce:      2,
	}
}

func testContacts() []alert.Contact {
	return []alert.Contact{
		{Name: "Susan", Phone: "+12125551234", Primary: true},
		{Name: "David", Phone: "+13105559876"},
	}
}

func openLog(t *testing.T) *eventlog.Log {
	t.Helper()
	log, err := eventlog.Open(filepath.Join(t.TempDir(), "events.jsonl"), nil)
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// offerFalls feeds n high-confidence fall frames with increasing
// timestamps.
func offerFalls(o *monitor.Orchestrator, n int, base time.Time) {
	for i := 0; i < n; i++ {
		o.Offer(detect.Frame{
			Timestamp:  base.Add(time.Duration(i) * 100 * time.Millisecond),
			Label:      detect.LabelFall,
			Confidence: 0.95,
		})
	}
}

func TestFallConfirmationTriggersOneAssessment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assessor := newGateAssessor()
	alerter := &fakeAlerter{}
	notes := &notifications{}

	o, err := monitor.New(monitor.Config{
		UserName:   "Margaret",
		Contacts:   testContacts(),
		Thresholds: testThresholds(),
		Cooldown:   time.Minute,
		OnChange:   notes.record,
	}, openLog(t), assessor, alerter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go o.Run(ctx)

	base := time.Now()
	offerFalls(o, 3, base)

	<-assessor.started
	if got := o.State(); got != detect.StateAssessing {
		t.Fatalf("state = %v, want assessing", got)
	}

	// More fall frames while assessing must never start a second
	// check-in; they are recorded, not folded.
	offerFalls(o, 10, base.Add(time.Second))
	waitFor(t, "frames drained", func() bool { return o.Status().QueueDepth == 0 })
	if n := assessor.calls.Load(); n != 1 {
		t.Fatalf("assessments started = %d, want 1", n)
	}

	assessor.release <- checkin.Safe
	waitFor(t, "return to monitoring", func() bool { return o.State() == detect.StateMonitoring })

	if alerter.callCount() != 0 {
		t.Error("safe check-in must not dispatch alerts")
	}
}

func TestNoResponseEscalates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assessor := &instantAssessor{response: checkin.NoResponse}
	alerter := &fakeAlerter{}
	log := openLog(t)

	o, err := monitor.New(monitor.Config{
		UserName:   "Margaret",
		Contacts:   testContacts(),
		Thresholds: testThresholds(),
	}, log, assessor, alerter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go o.Run(ctx)

	offerFalls(o, 3, time.Now())
	waitFor(t, "post-alert state", func() bool { return o.State() == detect.StatePostAlert })

	if alerter.callCount() != 1 {
		t.Fatalf("dispatches = %d, want 1", alerter.callCount())
	}

	// One fall, one assessment outcome, one alert_result per dispatch
	// entry (contacts + mock).
	var falls, outcomes, alertResults int
	for _, ev := range log.Events() {
		switch ev.Type {
		case eventlog.TypeFall:
			falls++
		case eventlog.TypeAssessmentOutcome:
			outcomes++
		case eventlog.TypeAlertResult:
			alertResults++
		}
	}
	if falls != 1 {
		t.Errorf("fall events = %d, want 1", falls)
	}
	if outcomes != 1 {
		t.Errorf("assessment outcome events = %d, want 1", outcomes)
	}
	if alertResults != len(testContacts())+1 {
		t.Errorf("alert result events = %d, want %d", alertResults, len(testContacts())+1)
	}

	// Post-alert holds until dismissed, even under continued signal.
	offerFalls(o, 5, time.Now().Add(time.Minute))
	waitFor(t, "frames drained", func() bool { return o.Status().QueueDepth == 0 })
	if got := o.State(); got != detect.StatePostAlert {
		t.Errorf("state = %v, want post_alert", got)
	}
	if assessor.calls.Load() != 1 {
		t.Errorf("assessments = %d, want 1", assessor.calls.Load())
	}
}

func TestDismissIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assessor := &instantAssessor{response: checkin.HelpNeeded}
	log := openLog(t)

	o, err := monitor.New(monitor.Config{
		UserName:   "Margaret",
		Contacts:   testContacts(),
		Thresholds: testThresholds(),
		Cooldown:   time.Minute,
	}, log, assessor, &fakeAlerter{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go o.Run(ctx)

	offerFalls(o, 3, time.Now())
	waitFor(t, "post-alert state", func() bool { return o.State() == detect.StatePostAlert })

	if !o.Dismiss() {
		t.Fatal("first dismiss should succeed")
	}
	waitFor(t, "return to monitoring", func() bool { return o.State() == detect.StateMonitoring })

	before := log.Len()
	if o.Dismiss() {
		t.Error("second dismiss should be a no-op")
	}
	if log.Len() != before {
		t.Error("no-op dismiss must not append an event")
	}
}

func TestCooldownSuppressesRefolding(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assessor := &instantAssessor{response: checkin.Safe}

	o, err := monitor.New(monitor.Config{
		UserName:   "Margaret",
		Contacts:   testContacts(),
		Thresholds: testThresholds(),
		Cooldown:   time.Minute,
	}, openLog(t), assessor, &fakeAlerter{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go o.Run(ctx)

	offerFalls(o, 3, time.Now())
	waitFor(t, "first assessment", func() bool { return assessor.calls.Load() == 1 })
	waitFor(t, "return to monitoring", func() bool { return o.State() == detect.StateMonitoring })

	// Still inside the cooldown; the same burst must not re-trigger.
	offerFalls(o, 6, time.Now().Add(time.Minute))
	waitFor(t, "frames drained", func() bool { return o.Status().QueueDepth == 0 })
	if assessor.calls.Load() != 1 {
		t.Errorf("assessments = %d, want 1 during cooldown", assessor.calls.Load())
	}
	if got := o.State(); got != detect.StateMonitoring {
		t.Errorf("state = %v, want monitoring", got)
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	o, err := monitor.New(monitor.Config{
		UserName:   "Margaret",
		Contacts:   testContacts(),
		Thresholds: testThresholds(),
		QueueSize:  4,
	}, openLog(t), &instantAssessor{response: checkin.Safe}, &fakeAlerter{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Not running: nothing drains, so the queue must shed from the
	// front and Offer must never block.
	done := make(chan struct{})
	go func() {
		offerFalls(o, 10, time.Now())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Offer blocked on a full queue")
	}

	status := o.Status()
	if status.QueueDepth != 4 {
		t.Errorf("QueueDepth = %d, want 4", status.QueueDepth)
	}
	if status.DroppedFrames != 6 {
		t.Errorf("DroppedFrames = %d, want 6", status.DroppedFrames)
	}
}

func TestNotificationPerTransition(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assessor := &instantAssessor{response: checkin.NoResponse}
	notes := &notifications{}

	o, err := monitor.New(monitor.Config{
		UserName:   "Margaret",
		Contacts:   testContacts(),
		Thresholds: testThresholds(),
		OnChange:   notes.record,
	}, openLog(t), assessor, &fakeAlerter{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go o.Run(ctx)

	offerFalls(o, 3, time.Now())
	waitFor(t, "post-alert state", func() bool { return o.State() == detect.StatePostAlert })

	// monitoring→confirming→fall_confirmed→assessing→post_alert.
	want := []detect.State{
		detect.StateConfirming,
		detect.StateFallConfirmed,
		detect.StateAssessing,
		detect.StatePostAlert,
	}
	got := notes.all()
	if len(got) != len(want) {
		t.Fatalf("notifications = %d, want %d: %+v", len(got), len(want), got)
	}
	for i, note := range got {
		if note.To != want[i] {
			t.Errorf("notification %d: to = %v, want %v", i, note.To, want[i])
		}
	}
	// The fall transition carries its event.
	if got[1].Event == nil || got[1].Event.Type != eventlog.TypeFall {
		t.Error("fall_confirmed notification should carry the fall event")
	}
}

func TestTestAlertLeavesStateAlone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alerter := &fakeAlerter{}
	o, err := monitor.New(monitor.Config{
		UserName:   "Margaret",
		Contacts:   testContacts(),
		Thresholds: testThresholds(),
	}, openLog(t), &instantAssessor{response: checkin.Safe}, alerter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go o.Run(ctx)

	results, err := o.TestAlert(ctx)
	if err != nil {
		t.Fatalf("TestAlert: %v", err)
	}
	if len(results) != len(testContacts())+1 {
		t.Errorf("results = %d, want %d", len(results), len(testContacts())+1)
	}

	alerter.mu.Lock()
	testMode := alerter.testModes[0]
	alerter.mu.Unlock()
	if !testMode {
		t.Error("test alert must dispatch with the test marker")
	}
	if got := o.State(); got != detect.StateMonitoring {
		t.Errorf("state = %v, want monitoring", got)
	}
}

func TestOutOfOrderFramesIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assessor := &instantAssessor{response: checkin.Safe}
	o, err := monitor.New(monitor.Config{
		UserName:   "Margaret",
		Contacts:   testContacts(),
		Thresholds: testThresholds(),
	}, openLog(t), assessor, &fakeAlerter{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go o.Run(ctx)

	base := time.Now()
	// Two fresh fall frames, then one stale frame that would complete
	// the run if it were folded.
	o.Offer(detect.Frame{Timestamp: base.Add(time.Second), Label: detect.LabelFall, Confidence: 0.95})
	o.Offer(detect.Frame{Timestamp: base.Add(2 * time.Second), Label: detect.LabelFall, Confidence: 0.95})
	o.Offer(detect.Frame{Timestamp: base, Label: detect.LabelFall, Confidence: 0.95})

	waitFor(t, "frames drained", func() bool { return o.Status().QueueDepth == 0 })
	if assessor.calls.Load() != 0 {
		t.Error("stale frame must not count toward confirmation")
	}
	if got := o.State(); got != detect.StateConfirming {
		t.Errorf("state = %v, want confirming", got)
	}
}

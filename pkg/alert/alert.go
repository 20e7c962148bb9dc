// Package alert escalates a confirmed emergency to the configured
// contacts. Every contact is attempted independently, and a mock
// emergency-services dispatch entry is always recorded last, so the
// result list is a complete audit of what was tried.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

// e164Pattern matches international phone numbers: + country code and
// digits, no separators.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Contact is one emergency contact. Immutable once loaded.
type Contact struct {
	// Name is the display name used in logs and the spoken message.
	Name string `json:"name"`

	// Phone is the number in E.164 format (e.g. "+12125551234").
	Phone string `json:"phone"`

	// Primary marks the contact listed first in the UI. Ordering is a
	// configuration choice; dispatch preserves whatever order it gets.
	Primary bool `json:"primary,omitempty"`
}

// Validate checks the contact's fields.
func (c Contact) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("alert: contact with phone %s has no name", c.Phone)
	}
	if !e164Pattern.MatchString(c.Phone) {
		return fmt.Errorf("alert: contact %s phone %q is not E.164", c.Name, c.Phone)
	}
	return nil
}

// Result records one attempted alert action. Never mutated after
// creation.
type Result struct {
	// Action describes the attempt, e.g. `Call to Susan (+12125551234)`.
	Action string `json:"action"`

	// Success is whether the action completed without error.
	Success bool `json:"success"`

	// Error holds the failure reason when Success is false.
	Error string `json:"error,omitempty"`

	// Timestamp is when the action was attempted.
	Timestamp time.Time `json:"timestamp"`
}

// mockDispatchAction names the fallback channel entry that closes every
// dispatch sequence.
const mockDispatchAction = "Mock dispatch to emergency services"

// Caller places a voice call that delivers a message. Implementations
// must deliver the message twice within the call; recipients often miss
// the first pass before realizing what they are hearing.
type Caller interface {
	Call(ctx context.Context, phone, message string) error
}

// CallerFunc adapts a plain function to the Caller interface.
type CallerFunc func(ctx context.Context, phone, message string) error

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, phone, message string) error {
	return f(ctx, phone, message)
}

// Dispatcher notifies emergency contacts.
type Dispatcher struct {
	caller Caller
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given telephony client.
func NewDispatcher(caller Caller, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		caller: caller,
		logger: logger.With("component", "alert"),
	}
}

// Dispatch calls every contact in order, then records the mock
// emergency-services dispatch. A failed call is captured in that
// contact's Result and never prevents the remaining contacts or the
// mock dispatch from being attempted.
//
// The returned slice always has len(contacts)+1 entries, in contact
// order, mock entry last.
func (d *Dispatcher) Dispatch(ctx context.Context, contacts []Contact, userName string, testMode bool) []Result {
	d.logger.Warn("alert triggered",
		"user", userName,
		"contacts", len(contacts),
		"test_mode", testMode,
	)

	results := make([]Result, 0, len(contacts)+1)
	for _, contact := range contacts {
		results = append(results, d.call(ctx, contact, userName, testMode))
	}
	results = append(results, d.mockDispatch(userName, testMode))

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		}
	}
	d.logger.Info("alert sequence complete",
		"succeeded", successes,
		"attempted", len(results),
	)
	return results
}

// call places a single call to one contact, capturing any failure.
func (d *Dispatcher) call(ctx context.Context, contact Contact, userName string, testMode bool) Result {
	action := fmt.Sprintf("Call to %s (%s)", contact.Name, contact.Phone)
	message := ComposeMessage(contact.Name, userName, testMode)

	if err := d.caller.Call(ctx, contact.Phone, message); err != nil {
		d.logger.Error("call failed",
			"contact", contact.Name,
			"phone", contact.Phone,
			"error", err,
		)
		return Result{
			Action:    action,
			Success:   false,
			Error:     err.Error(),
			Timestamp: time.Now(),
		}
	}

	d.logger.Info("call placed",
		"contact", contact.Name,
		"phone", contact.Phone,
	)
	return Result{Action: action, Success: true, Timestamp: time.Now()}
}

// mockDispatch records the emergency-services fallback entry. It is a
// placeholder channel: nothing is actually dispatched, but the entry is
// never skipped, even on total contact failure.
func (d *Dispatcher) mockDispatch(userName string, testMode bool) Result {
	d.logger.Info("mock emergency services dispatch",
		"user", userName,
		"incident", "possible fall, no response to automated check-in",
		"test_mode", testMode,
	)
	return Result{Action: mockDispatchAction, Success: true, Timestamp: time.Now()}
}

// ComposeMessage builds the message spoken to a contact. testMode
// prefixes a clearly-labeled test marker; the message is otherwise
// identical so a test exercises the same path end to end.
func ComposeMessage(contactName, userName string, testMode bool) string {
	prefix := ""
	if testMode {
		prefix = "This is a test of the emergency alert system. "
	}
	return fmt.Sprintf(
		"%sHello %s. This is an automated alert. "+
			"%s may have fallen and did not respond to a check-in. "+
			"Please check on them immediately and call emergency services if needed.",
		prefix, contactName, userName,
	)
}

package alert

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio credential errors, surfaced at construction so the system
// never starts without a working escalation path.
var (
	ErrNoAccountSID = errors.New("alert: twilio account SID required")
	ErrNoAuthToken  = errors.New("alert: twilio auth token required")
	ErrNoFromNumber = errors.New("alert: twilio from number required")
)

// TwilioConfig holds telephony credentials.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Validate checks that all credentials are present and the outbound
// number is E.164.
func (c TwilioConfig) Validate() error {
	if c.AccountSID == "" {
		return ErrNoAccountSID
	}
	if c.AuthToken == "" {
		return ErrNoAuthToken
	}
	if c.FromNumber == "" {
		return ErrNoFromNumber
	}
	if !e164Pattern.MatchString(c.FromNumber) {
		return fmt.Errorf("alert: from number %q is not E.164", c.FromNumber)
	}
	return nil
}

// TwilioCaller implements Caller over the Twilio voice API. The message
// is delivered as inline TwiML, spoken twice with a pause between
// passes; no callback URL is required.
type TwilioCaller struct {
	client *twilio.RestClient
	from   string
	logger *slog.Logger
}

// NewTwilioCaller creates a telephony client from credentials.
func NewTwilioCaller(cfg TwilioConfig, logger *slog.Logger) (*TwilioCaller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioCaller{
		client: client,
		from:   cfg.FromNumber,
		logger: logger.With("component", "alert.twilio"),
	}, nil
}

// Call places an outbound voice call speaking the message twice.
func (t *TwilioCaller) Call(ctx context.Context, phone, message string) error {
	twiml, err := buildTwiML(message)
	if err != nil {
		return fmt.Errorf("alert: build twiml: %w", err)
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(phone)
	params.SetFrom(t.from)
	params.SetTwiml(twiml)

	call, err := t.client.Api.CreateCall(params)
	if err != nil {
		return fmt.Errorf("alert: create call: %w", err)
	}

	sid := ""
	if call.Sid != nil {
		sid = *call.Sid
	}
	t.logger.Info("call created", "to", phone, "sid", sid)
	return nil
}

// buildTwiML wraps the message in a TwiML response that speaks it
// twice. The message text is XML-escaped.
func buildTwiML(message string) (string, error) {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(message)); err != nil {
		return "", err
	}
	msg := escaped.String()

	return fmt.Sprintf(
		`<Response><Say voice="alice">%s</Say><Pause length="1"/><Say voice="alice">%s</Say></Response>`,
		msg, msg,
	), nil
}

// Verify TwilioCaller implements Caller at compile time.
var _ Caller = (*TwilioCaller)(nil)

package alert_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/vigil-labs/go-vigil/pkg/alert"
)

func TestDispatchIsolation(t *testing.T) {
	contacts := []alert.Contact{
		{Name: "Susan", Phone: "+12125551234", Primary: true},
		{Name: "David", Phone: "+13105559876"},
	}

	t.Run("failure does not stop remaining contacts", func(t *testing.T) {
		caller := alert.CallerFunc(func(ctx context.Context, phone, message string) error {
			if phone == "+12125551234" {
				return errors.New("twilio: unverified number")
			}
			return nil
		})

		d := alert.NewDispatcher(caller, nil)
		results := d.Dispatch(context.Background(), contacts, "Margaret", false)

		if len(results) != 3 {
			t.Fatalf("results = %d, want contacts+1 = 3", len(results))
		}
		if results[0].Success {
			t.Error("Susan's call should have failed")
		}
		if results[0].Error == "" {
			t.Error("failed result must carry a non-empty error")
		}
		if !results[1].Success {
			t.Errorf("David's call should have succeeded: %s", results[1].Error)
		}
		if !results[2].Success || !strings.Contains(results[2].Action, "Mock dispatch") {
			t.Errorf("final entry = %+v, want successful mock dispatch", results[2])
		}
	})

	t.Run("mock dispatch survives total failure", func(t *testing.T) {
		caller := alert.CallerFunc(func(ctx context.Context, phone, message string) error {
			return errors.New("network down")
		})

		d := alert.NewDispatcher(caller, nil)
		results := d.Dispatch(context.Background(), contacts, "Margaret", false)

		if len(results) != 3 {
			t.Fatalf("results = %d, want 3", len(results))
		}
		last := results[len(results)-1]
		if !last.Success {
			t.Error("mock dispatch must always succeed")
		}
	})

	t.Run("order preserves contact order", func(t *testing.T) {
		var mu sync.Mutex
		var called []string
		caller := alert.CallerFunc(func(ctx context.Context, phone, message string) error {
			mu.Lock()
			called = append(called, phone)
			mu.Unlock()
			return nil
		})

		d := alert.NewDispatcher(caller, nil)
		results := d.Dispatch(context.Background(), contacts, "Margaret", false)

		if called[0] != "+12125551234" || called[1] != "+13105559876" {
			t.Errorf("call order = %v", called)
		}
		if !strings.Contains(results[0].Action, "Susan") || !strings.Contains(results[1].Action, "David") {
			t.Errorf("result order mismatch: %v, %v", results[0].Action, results[1].Action)
		}
	})

	t.Run("no contacts still records mock dispatch", func(t *testing.T) {
		d := alert.NewDispatcher(alert.CallerFunc(func(ctx context.Context, phone, message string) error {
			t.Fatal("caller must not be invoked")
			return nil
		}), nil)

		results := d.Dispatch(context.Background(), nil, "Margaret", false)
		if len(results) != 1 {
			t.Fatalf("results = %d, want 1", len(results))
		}
	})
}

func TestComposeMessage(t *testing.T) {
	t.Run("normal mode", func(t *testing.T) {
		msg := alert.ComposeMessage("Susan", "Margaret", false)
		if !strings.Contains(msg, "Hello Susan") {
			t.Error("message missing contact salutation")
		}
		if !strings.Contains(msg, "Margaret may have fallen") {
			t.Error("message missing user name")
		}
		if strings.Contains(msg, "test") {
			t.Error("normal mode must not carry a test marker")
		}
	})

	t.Run("test mode prefixes marker", func(t *testing.T) {
		msg := alert.ComposeMessage("Susan", "Margaret", true)
		if !strings.HasPrefix(msg, "This is a test of the emergency alert system.") {
			t.Errorf("test message = %q", msg)
		}
		// Otherwise identical content.
		if !strings.Contains(msg, "Margaret may have fallen") {
			t.Error("test message missing the real alert body")
		}
	})
}

func TestContactValidate(t *testing.T) {
	tests := []struct {
		name    string
		contact alert.Contact
		wantErr bool
	}{
		{"valid", alert.Contact{Name: "Susan", Phone: "+12125551234"}, false},
		{"missing plus", alert.Contact{Name: "Susan", Phone: "12125551234"}, true},
		{"separators", alert.Contact{Name: "Susan", Phone: "+1 (212) 555-1234"}, true},
		{"leading zero country code", alert.Contact{Name: "Susan", Phone: "+0212555"}, true},
		{"empty name", alert.Contact{Phone: "+12125551234"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.contact.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTwilioConfigValidate(t *testing.T) {
	valid := alert.TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		FromNumber: "+15005550006",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	missing := valid
	missing.AuthToken = ""
	if err := missing.Validate(); !errors.Is(err, alert.ErrNoAuthToken) {
		t.Errorf("error = %v, want ErrNoAuthToken", err)
	}

	badFrom := valid
	badFrom.FromNumber = "5005550006"
	if err := badFrom.Validate(); err == nil {
		t.Error("non-E.164 from number accepted")
	}
}

func TestWebhookNotify(t *testing.T) {
	t.Run("posts summary", func(t *testing.T) {
		var gotBody string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := make([]byte, r.ContentLength)
			r.Body.Read(buf)
			gotBody = string(buf)
		}))
		defer server.Close()

		w := alert.NewWebhook(server.URL, nil, nil)
		err := w.Notify(context.Background(), alert.Summary{
			User:    "Margaret",
			Outcome: "no_response",
			Results: []alert.Result{{Action: "Call to Susan (+12125551234)", Success: true}},
		})
		if err != nil {
			t.Fatalf("Notify: %v", err)
		}
		if !strings.Contains(gotBody, "Margaret") || !strings.Contains(gotBody, "no_response") {
			t.Errorf("posted body = %s", gotBody)
		}
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		w := alert.NewWebhook(server.URL, nil, nil)
		if err := w.Notify(context.Background(), alert.Summary{}); err == nil {
			t.Error("expected error for 502 response")
		}
	})
}

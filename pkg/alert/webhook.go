package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Webhook posts an alert summary to an operator-configured HTTP
// endpoint. It is a best-effort side channel for dashboards and care
// coordinators; it never contributes to the dispatch result list and
// its failure never affects escalation.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier. A nil client falls back to
// http.DefaultClient; callers should pass one with timeouts set.
func NewWebhook(url string, client *http.Client, logger *slog.Logger) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		client: client,
		logger: logger.With("component", "alert.webhook"),
	}
}

// Summary is the payload posted after a dispatch sequence.
type Summary struct {
	User      string    `json:"user"`
	Outcome   string    `json:"outcome"`
	TestMode  bool      `json:"test_mode"`
	Results   []Result  `json:"results"`
	Timestamp time.Time `json:"timestamp"`
}

// Notify posts the summary. Errors are returned for logging only;
// callers must not treat a webhook failure as a dispatch failure.
func (w *Webhook) Notify(ctx context.Context, summary Summary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("alert: marshal summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alert: create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert: webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert: webhook returned status %d", resp.StatusCode)
	}
	w.logger.Info("webhook notified", "url", w.url, "results", len(summary.Results))
	return nil
}

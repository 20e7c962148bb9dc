// Vigil - in-home fall monitoring with voice check-in and emergency
// escalation. Classified pose frames come in over the API; confirmed
// falls trigger a spoken check-in, and an unresolved check-in calls
// the configured emergency contacts.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vigil-labs/go-vigil/internal/config"
	"github.com/vigil-labs/go-vigil/internal/httpc"
	"github.com/vigil-labs/go-vigil/internal/log"
	"github.com/vigil-labs/go-vigil/pkg/alert"
	"github.com/vigil-labs/go-vigil/pkg/checkin"
	"github.com/vigil-labs/go-vigil/pkg/detect"
	"github.com/vigil-labs/go-vigil/pkg/eventlog"
	"github.com/vigil-labs/go-vigil/pkg/monitor"
	"github.com/vigil-labs/go-vigil/pkg/speech"
	"github.com/vigil-labs/go-vigil/pkg/web"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	port := flag.String("port", "", "Dashboard port (overrides PORT env var)")
	mockVoice := flag.Bool("mock-voice", false, "Use mock speech and telephony (overrides VIGIL_MOCK_VOICE)")
	testMode := flag.Bool("test-mode", false, "Mark all alert calls as tests (overrides VIGIL_TEST_MODE)")
	flag.Parse()

	log.Init(*logLevel)
	logger := log.L()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}
	if *mockVoice {
		cfg.MockVoice = true
	}
	if *testMode {
		cfg.TestMode = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	events, err := eventlog.Open(cfg.EventLogPath, logger)
	if err != nil {
		logger.Error("failed to open event log", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	controller, caller, err := buildVoiceStack(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize voice stack", "error", err)
		os.Exit(1)
	}
	dispatcher := alert.NewDispatcher(caller, logger)

	// The server is created after the orchestrator; the callback is
	// only invoked once Run starts, by which point it is set.
	var server *web.Server
	orch, err := monitor.New(monitor.Config{
		UserName:   cfg.UserName,
		Contacts:   cfg.Contacts,
		TestMode:   cfg.TestMode,
		QueueSize:  cfg.QueueSize,
		Cooldown:   cfg.Cooldown,
		ClipDir:    cfg.ClipDir,
		ClipWindow: cfg.ClipWindow,
		Thresholds: cfg.Thresholds(),
		Logger:     logger,
		OnChange: func(n monitor.Notification) {
			if server != nil {
				server.Notify(n)
			}
		},
	}, events, controller, newAlerter(cfg, dispatcher, logger))
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	server = web.NewServer(cfg.Port, orch, events, logger)
	if cfg.ClassifierURL != "" {
		server.SetClassifier(detect.NewHTTPClassifier(cfg.ClassifierURL, httpc.Client))
	}
	server.StartAsync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orch.Run(ctx)

	logger.Info("shutting down")
	if err := server.Shutdown(); err != nil {
		logger.Error("web shutdown error", "error", err)
	}
}

// buildVoiceStack wires the check-in controller and the telephony
// caller, either against real providers or fully mocked for
// development machines without audio hardware.
func buildVoiceStack(cfg *config.Config, logger *slog.Logger) (*checkin.Controller, alert.Caller, error) {
	checkinCfg := checkin.Config{
		Timeout:      cfg.Timeout,
		SecondChance: cfg.SecondChance,
		Logger:       logger,
	}

	if cfg.MockVoice {
		logger.Warn("voice stack mocked; no audio or calls will be made")
		mock := speech.NewMock()
		caller := alert.CallerFunc(func(ctx context.Context, phone, message string) error {
			logger.Info("mock call", "to", phone, "message", message)
			return nil
		})
		return checkin.New(mock, mock, mock, checkinCfg), caller, nil
	}

	synth, err := speech.NewElevenLabs(speech.NewDevicePlayer(speech.WithLogger(logger)),
		speech.WithAPIKey(cfg.ElevenLabsKey),
		speech.WithVoice(cfg.ElevenLabsVoice),
		speech.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	listener := speech.NewDeviceListener(speech.WithLogger(logger))

	scribe, err := speech.NewStreamingTranscriber(
		speech.WithAPIKey(cfg.AssemblyAIKey),
		speech.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	caller, err := alert.NewTwilioCaller(cfg.Twilio(), logger)
	if err != nil {
		return nil, nil, err
	}

	return checkin.New(synth, listener, scribe, checkinCfg), caller, nil
}

// webhookAlerter runs the normal dispatch sequence and then posts a
// best-effort summary to the operator webhook.
type webhookAlerter struct {
	*alert.Dispatcher
	hook *alert.Webhook
}

func newAlerter(cfg *config.Config, d *alert.Dispatcher, logger *slog.Logger) monitor.Alerter {
	if cfg.WebhookURL == "" {
		return d
	}
	return &webhookAlerter{
		Dispatcher: d,
		hook:       alert.NewWebhook(cfg.WebhookURL, httpc.Client, logger),
	}
}

func (w *webhookAlerter) Dispatch(ctx context.Context, contacts []alert.Contact, userName string, testMode bool) []alert.Result {
	results := w.Dispatcher.Dispatch(ctx, contacts, userName, testMode)

	summary := alert.Summary{
		User:      userName,
		Outcome:   "escalated",
		TestMode:  testMode,
		Results:   results,
		Timestamp: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		w.hook.Notify(ctx, summary)
	}()
	return results
}

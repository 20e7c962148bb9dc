// Package web serves the monitoring dashboard and API: live status,
// incident history, frame ingestion, and the dismiss/test-alert
// actions, plus a websocket stream of state changes.
package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/vigil-labs/go-vigil/pkg/detect"
	"github.com/vigil-labs/go-vigil/pkg/eventlog"
	"github.com/vigil-labs/go-vigil/pkg/hub"
	"github.com/vigil-labs/go-vigil/pkg/monitor"
	"github.com/vigil-labs/go-vigil/pkg/notify"
)

// Server is the dashboard/API server.
type Server struct {
	app  *fiber.App
	port string

	orch   *monitor.Orchestrator
	events *eventlog.Log

	// classifier resolves feature-only frames; nil when the sensor
	// pipeline always classifies before posting.
	classifier detect.Classifier

	// Hub for websocket broadcast (thread-safe!)
	statusHub *hub.Hub

	logger *slog.Logger
}

// NewServer creates the server and wires its routes. Pass the
// orchestrator's event log so history reads see the same record.
func NewServer(port string, orch *monitor.Orchestrator, events *eventlog.Log, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		port:      port,
		orch:      orch,
		events:    events,
		statusHub: hub.New("status", logger),
		logger:    logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Vigil Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// Static files
	app.Static("/", "./web")

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Post("/frames", s.handleFrames)
	api.Post("/dismiss", s.handleDismiss)
	api.Post("/test-alert", s.handleTestAlert)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// SetClassifier enables server-side classification for frames posted
// with features but no label. Must be called before Start.
func (s *Server) SetClassifier(c detect.Classifier) {
	s.classifier = c
}

// Start starts the web server. Blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "port", s.port)

	go s.statusHub.Run()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the web server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// Notify is the orchestrator's state-change callback. It fans the
// transition (and its event, when present) out to every connected
// dashboard. It never blocks the control loop; slow clients are
// dropped by the hub.
func (s *Server) Notify(n monitor.Notification) {
	msg, err := notify.NewStateMessage(n.To.String(), n.From.String(), 0)
	if err != nil {
		s.logger.Error("failed to build state message", "error", err)
		return
	}
	s.statusHub.BroadcastMessage(msg)

	if n.Event != nil {
		ev, err := notify.NewEventMessage(n.Event.ID, string(n.Event.Type), n.Event.Metadata, n.Event.Clip)
		if err != nil {
			s.logger.Error("failed to build event message", "error", err)
			return
		}
		s.statusHub.BroadcastMessage(ev)
	}
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

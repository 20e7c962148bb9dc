package web

import (
	"encoding/base64"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/vigil-labs/go-vigil/pkg/detect"
	"github.com/vigil-labs/go-vigil/pkg/hub"
	"github.com/vigil-labs/go-vigil/pkg/notify"
)

// handleStatus returns the orchestrator snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.orch.Status())
}

// handleEvents returns the incident history in append order. An
// optional ?limit=N returns only the most recent N entries, still in
// append order.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	events := s.events.Events()

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a non-negative integer",
			})
		}
		if limit < len(events) {
			events = events[len(events)-limit:]
		}
	}

	return c.JSON(fiber.Map{
		"count":  len(events),
		"events": events,
	})
}

// handleFrames ingests one classified frame from the sensor pipeline.
func (s *Server) handleFrames(c *fiber.Ctx) error {
	var frame notify.FrameData
	if err := c.BodyParser(&frame); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed frame payload",
		})
	}

	label := detect.Label(frame.Label)
	confidence := frame.Confidence
	switch label {
	case detect.LabelNormal, detect.LabelNearFall, detect.LabelFall:
	case "":
		// Feature-only frame; classify it here. A classification
		// failure skips the frame without touching detection state.
		if s.classifier == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "label required; no classifier configured",
			})
		}
		var err error
		label, confidence, err = s.classifier.Classify(c.Context(), frame.Features)
		if err != nil {
			s.logger.Warn("classification failed, skipping frame", "error", err)
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "classification failed",
			})
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown label",
		})
	}
	if confidence < 0 || confidence > 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "confidence must be within [0, 1]",
		})
	}

	ts := time.Now()
	if frame.Timestamp > 0 {
		ts = time.UnixMilli(frame.Timestamp)
	}

	if frame.Image != "" {
		jpeg, err := base64.StdEncoding.DecodeString(frame.Image)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "image must be base64",
			})
		}
		s.orch.ClipFrame(ts, jpeg)
	}

	s.orch.Offer(detect.Frame{
		Timestamp:  ts,
		Features:   frame.Features,
		Label:      label,
		Confidence: confidence,
	})

	return c.SendStatus(fiber.StatusAccepted)
}

// handleDismiss acknowledges an active alert.
func (s *Server) handleDismiss(c *fiber.Ctx) error {
	dismissed := s.orch.Dismiss()
	return c.JSON(fiber.Map{
		"dismissed": dismissed,
		"state":     s.orch.State().String(),
	})
}

// handleTestAlert runs a full alert dispatch in test mode.
func (s *Server) handleTestAlert(c *fiber.Ctx) error {
	results, err := s.orch.TestAlert(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"results": results,
		"state":   s.orch.State().String(),
	})
}

// handleStatusWS streams state changes and events to a dashboard
// client. The current state is sent immediately on connect.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	status := s.orch.Status()
	if msg, err := notify.NewStateMessage(status.State, "", status.Since.UnixMilli()); err == nil {
		if data, err := msg.Bytes(); err == nil {
			c.WriteMessage(websocket.TextMessage, data)
		}
	}

	client := hub.NewClient(s.statusHub, c)
	client.Run() // Blocks until the connection closes
}

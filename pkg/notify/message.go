// Package notify defines the JSON message envelope shared by the
// monitoring server and its clients: sensors pushing classified frames
// in, and dashboards receiving state changes and incident events out.
package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of message.
type MessageType string

const (
	// Sensor → Server messages
	TypeFrame MessageType = "frame" // Classified pose frame

	// Server → Client messages
	TypeState MessageType = "state" // Detection state change
	TypeEvent MessageType = "event" // New event log entry
	TypeAlert MessageType = "alert" // Alert dispatch summary

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct.
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// FrameData is one classified pose frame from the sensor pipeline.
type FrameData struct {
	Timestamp  int64     `json:"ts"` // Unix milliseconds, capture time
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Features   []float64 `json:"features,omitempty"`
	Image      string    `json:"image,omitempty"` // base64 JPEG, for the clip buffer
}

// StateData announces a detection state transition.
type StateData struct {
	State    string `json:"state"`
	Previous string `json:"previous,omitempty"`
	Since    int64  `json:"since,omitempty"` // Unix milliseconds
}

// EventData carries one event log entry to subscribed clients.
type EventData struct {
	ID       string            `json:"id"`
	Type     string            `json:"event_type"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Clip     string            `json:"clip,omitempty"`
}

// AlertData summarizes a completed alert dispatch sequence.
type AlertData struct {
	Outcome   string        `json:"outcome"`
	TestMode  bool          `json:"test_mode"`
	Succeeded int           `json:"succeeded"`
	Results   []AlertResult `json:"results"`
}

// AlertResult mirrors one dispatch attempt.
type AlertResult struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PingData contains ping information.
type PingData struct {
	ID string `json:"id"`
}

// PongData contains the pong response.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

package notify

// NewFrameMessage creates a frame message from a classified frame.
func NewFrameMessage(tsMillis int64, label string, confidence float64, features []float64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Timestamp:  tsMillis,
		Label:      label,
		Confidence: confidence,
		Features:   features,
	})
}

// NewStateMessage creates a state transition message.
func NewStateMessage(state, previous string, sinceMillis int64) (*Message, error) {
	return NewMessage(TypeState, StateData{
		State:    state,
		Previous: previous,
		Since:    sinceMillis,
	})
}

// NewEventMessage creates an event message.
func NewEventMessage(id, eventType string, metadata map[string]string, clip string) (*Message, error) {
	return NewMessage(TypeEvent, EventData{
		ID:       id,
		Type:     eventType,
		Metadata: metadata,
		Clip:     clip,
	})
}

// NewAlertMessage creates an alert summary message.
func NewAlertMessage(outcome string, testMode bool, results []AlertResult) (*Message, error) {
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	return NewMessage(TypeAlert, AlertData{
		Outcome:   outcome,
		TestMode:  testMode,
		Succeeded: succeeded,
		Results:   results,
	})
}

// NewPongMessage creates a pong response message.
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// GetFrameData extracts frame data from a message.
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts state data from a message.
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetEventData extracts event data from a message.
func (m *Message) GetEventData() (*EventData, error) {
	var data EventData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAlertData extracts an alert summary from a message.
func (m *Message) GetAlertData() (*AlertData, error) {
	var data AlertData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message.
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

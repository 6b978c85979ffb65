package models

import (
	"encoding/json"
	"fmt"
)

// WebSocketEventType discriminates WebSocketEvent payloads
type WebSocketEventType string

const (
	EventSensorUpdate    WebSocketEventType = "sensor_update"
	EventAnalysisUpdate  WebSocketEventType = "analysis_update"
	EventCommandExecuted WebSocketEventType = "command_executed"
	EventChatMessage     WebSocketEventType = "chat_message"
)

// AllEventTypes lists every broadcast event type
var AllEventTypes = []WebSocketEventType{
	EventSensorUpdate,
	EventAnalysisUpdate,
	EventCommandExecuted,
	EventChatMessage,
}

func (t WebSocketEventType) Valid() bool {
	for _, et := range AllEventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// WebSocketEvent is the envelope pushed to clients and event sinks.
// Build it through the New*Event constructors so Type always matches Data.
type WebSocketEvent struct {
	Type WebSocketEventType `json:"type"`
	Data interface{}        `json:"data"`
}

func NewSensorUpdateEvent(data *SensorData) WebSocketEvent {
	return WebSocketEvent{Type: EventSensorUpdate, Data: data}
}

func NewAnalysisUpdateEvent(analysis *Analysis) WebSocketEvent {
	return WebSocketEvent{Type: EventAnalysisUpdate, Data: analysis}
}

func NewCommandExecutedEvent(cmd *Command) WebSocketEvent {
	return WebSocketEvent{Type: EventCommandExecuted, Data: cmd}
}

func NewChatMessageEvent(msg *ChatMessage) WebSocketEvent {
	return WebSocketEvent{Type: EventChatMessage, Data: msg}
}

// WithoutImage returns the event with any analysis photo removed. External
// mirrors get this form; a base64 JPEG would exceed broker message limits.
func (e WebSocketEvent) WithoutImage() WebSocketEvent {
	analysis, ok := e.Data.(*Analysis)
	if !ok || analysis == nil || analysis.ImageBase64 == "" {
		return e
	}
	stripped := *analysis
	stripped.ImageBase64 = ""
	return WebSocketEvent{Type: e.Type, Data: &stripped}
}

// DecodeWebSocketEvent parses an envelope into its strongly typed payload
func DecodeWebSocketEvent(raw []byte) (WebSocketEvent, error) {
	var env struct {
		Type WebSocketEventType `json:"type"`
		Data json.RawMessage    `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return WebSocketEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	var data interface{}
	switch env.Type {
	case EventSensorUpdate:
		data = &SensorData{}
	case EventAnalysisUpdate:
		data = &Analysis{}
	case EventCommandExecuted:
		data = &Command{}
	case EventChatMessage:
		data = &ChatMessage{}
	default:
		return WebSocketEvent{}, fmt.Errorf("unknown event type: %q", env.Type)
	}

	if err := json.Unmarshal(env.Data, data); err != nil {
		return WebSocketEvent{}, fmt.Errorf("failed to unmarshal %s payload: %w", env.Type, err)
	}
	return WebSocketEvent{Type: env.Type, Data: data}, nil
}

package services

import (
	"context"
	"time"

	"solanum/grok"
	"solanum/models"
)

// Store is the persistence surface the services need
type Store interface {
	InsertSensorReading(ctx context.Context, temperature, humidity float64) (*models.SensorReading, error)
	GetRecentSensorReadings(ctx context.Context, limit int) ([]models.SensorReading, error)
	PruneSensorReadings(ctx context.Context, before time.Time) (int64, error)
	InsertAnalysis(ctx context.Context, a *models.Analysis) (*models.Analysis, error)
	GetLatestAnalysis(ctx context.Context) (*models.Analysis, error)
	InsertCommand(ctx context.Context, cmd *models.Command) (*models.Command, error)
	GetLastWatering(ctx context.Context) (*models.Command, error)
	InsertChatMessage(ctx context.Context, role models.ChatRole, content string) (*models.ChatMessage, error)
	GetChatHistory(ctx context.Context, limit int) ([]models.ChatMessage, error)
}

// Device is the Pi service
type Device interface {
	GetSensors(ctx context.Context) (*models.SensorData, error)
	GetRelays(ctx context.Context) (*models.RelayState, error)
	SetRelay(ctx context.Context, relay models.Relay, on bool) (*models.RelayState, error)
	Capture(ctx context.Context) ([]byte, error)
}

// Model is the vision/chat model
type Model interface {
	Analyze(ctx context.Context, image []byte, ac grok.AnalysisContext) (*models.AnalysisResponse, error)
	Chat(ctx context.Context, history []models.ChatMessage, userMessage string, summary string) (string, error)
}

// Emitter publishes events to connected clients and sinks
type Emitter interface {
	Emit(event models.WebSocketEvent)
}

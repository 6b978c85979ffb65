package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"solanum/database"
	"solanum/grok"
	"solanum/models"
)

// ErrEmptyMessage is returned for blank chat input
var ErrEmptyMessage = errors.New("message is required")

const (
	chatHistoryTurns   = 20
	chatRecentReadings = 5
)

// ChatService lets the owner talk to the plant
type ChatService struct {
	store  Store
	model  Model
	events Emitter
}

func NewChatService(store Store, model Model, events Emitter) *ChatService {
	return &ChatService{store: store, model: model, events: events}
}

// Send stores the user turn, asks the model and stores its reply
func (s *ChatService) Send(ctx context.Context, message string) (*models.ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	// history is read before the new turn is stored so it is not sent twice
	history, err := s.store.GetChatHistory(ctx, chatHistoryTurns)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.store.InsertChatMessage(ctx, models.RoleUser, message)
	if err != nil {
		return nil, err
	}
	s.events.Emit(models.NewChatMessageEvent(userMsg))

	latest, err := s.store.GetLatestAnalysis(ctx)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Printf("Chat: latest analysis unavailable: %v", err)
	}
	recent, err := s.store.GetRecentSensorReadings(ctx, chatRecentReadings)
	if err != nil {
		log.Printf("Chat: recent readings unavailable: %v", err)
	}

	reply, err := s.model.Chat(ctx, history, message, grok.Summary(latest, recent))
	if err != nil {
		return nil, fmt.Errorf("chat failed: %w", err)
	}

	assistantMsg, err := s.store.InsertChatMessage(ctx, models.RoleAssistant, reply)
	if err != nil {
		return nil, err
	}
	s.events.Emit(models.NewChatMessageEvent(assistantMsg))

	createdAt := assistantMsg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &models.ChatResponse{Response: reply, CreatedAt: createdAt}, nil
}

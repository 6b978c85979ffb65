package services

import (
	"context"
	"fmt"
	"testing"

	"solanum/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSendStoresBothTurns(t *testing.T) {
	store, events := &fakeStore{}, &recordingEmitter{}
	model := &fakeModel{reply: "I'm doing great, thanks!"}
	_, _ = store.InsertAnalysis(context.Background(), &models.Analysis{HealthScore: 91, SoilAssessment: models.SoilMoist})
	chat := NewChatService(store, model, events)

	resp, err := chat.Send(context.Background(), "  How are you?  ")
	require.NoError(t, err)
	assert.Equal(t, "I'm doing great, thanks!", resp.Response)
	assert.False(t, resp.CreatedAt.IsZero())

	require.Len(t, store.chat, 2)
	assert.Equal(t, models.RoleUser, store.chat[0].Role)
	assert.Equal(t, "How are you?", store.chat[0].Content)
	assert.Equal(t, models.RoleAssistant, store.chat[1].Role)

	assert.Equal(t, []models.WebSocketEventType{models.EventChatMessage, models.EventChatMessage}, events.types())
	assert.Contains(t, model.lastSummary, "health 91/100")
	assert.Empty(t, model.lastHistory)
}

func TestChatSendLimitsHistory(t *testing.T) {
	store, events := &fakeStore{}, &recordingEmitter{}
	for i := 0; i < 30; i++ {
		_, _ = store.InsertChatMessage(context.Background(), models.RoleUser, fmt.Sprintf("message %d", i))
	}
	model := &fakeModel{reply: "ok"}
	chat := NewChatService(store, model, events)

	_, err := chat.Send(context.Background(), "latest")
	require.NoError(t, err)
	require.Len(t, model.lastHistory, chatHistoryTurns)
	assert.Equal(t, "message 10", model.lastHistory[0].Content)
	assert.Equal(t, "message 29", model.lastHistory[len(model.lastHistory)-1].Content)
	assert.Contains(t, model.lastSummary, "No photo analysis yet")
}

func TestChatSendRejectsEmpty(t *testing.T) {
	chat := NewChatService(&fakeStore{}, &fakeModel{}, &recordingEmitter{})
	_, err := chat.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

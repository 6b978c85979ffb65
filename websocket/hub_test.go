package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"solanum/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, origins ...string) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(origins)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func messageType(t *testing.T, msg map[string]json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(msg["type"], &s))
	return s
}

func TestWelcomeAndBroadcast(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	welcome := readMessage(t, conn)
	assert.Equal(t, "connection", messageType(t, welcome))
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast(models.NewSensorUpdateEvent(&models.SensorData{Temperature: 21.5, Humidity: 40})))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	event, err := models.DecodeWebSocketEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, models.EventSensorUpdate, event.Type)
	assert.Equal(t, 21.5, event.Data.(*models.SensorData).Temperature)
}

func TestPingPong(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", messageType(t, readMessage(t, conn)))
}

func TestSubscriptionFiltersEvents(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "subscribe",
		"data": map[string]interface{}{"events": []string{"chat_message"}},
	}))
	// the ping reply proves the subscribe was handled, since messages are read in order
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", messageType(t, readMessage(t, conn)))

	require.NoError(t, hub.Broadcast(models.NewSensorUpdateEvent(&models.SensorData{})))
	require.NoError(t, hub.Broadcast(models.NewChatMessageEvent(&models.ChatMessage{Role: models.RoleUser, Content: "hi"})))

	assert.Equal(t, "chat_message", messageType(t, readMessage(t, conn)))
}

func TestUnregisterOnClose(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRejectsUnknownOrigin(t *testing.T) {
	_, url := startHub(t, "http://greenhouse.local")

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestShutdownReleasesConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil)
	go hub.Run(ctx)

	handled := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r)
		handled <- struct{}{}
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn := dial(t, url)
	readMessage(t, conn)
	<-handled

	cancel()
	<-hub.done

	// the open connection is closed by the hub
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// late connections are turned away instead of waiting on a stopped hub
	late := dial(t, url)
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked after shutdown")
	}
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.GetClientCount())
}

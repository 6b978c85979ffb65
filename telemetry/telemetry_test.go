package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"solanum/config"
	"solanum/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeClient records publishes; the embedded interface panics on anything else
type fakeClient struct {
	mqtt.Client
	mu        sync.Mutex
	published map[string][]byte
	err       error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.published == nil {
		c.published = make(map[string][]byte)
	}
	c.published[topic] = payload.([]byte)
	return &doneToken{err: c.err}
}

func TestMQTTPublishUsesTypeTopic(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisherWith(client, "solanum/")

	err := p.Publish(context.Background(), models.NewChatMessageEvent(&models.ChatMessage{Role: models.RoleAssistant, Content: "hello"}))
	require.NoError(t, err)

	payload, ok := client.published["solanum/chat_message"]
	require.True(t, ok)
	event, err := models.DecodeWebSocketEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "hello", event.Data.(*models.ChatMessage).Content)
}

func TestMQTTPublishError(t *testing.T) {
	p := NewMQTTPublisherWith(&fakeClient{err: errors.New("not connected")}, "solanum")
	err := p.Publish(context.Background(), models.NewSensorUpdateEvent(&models.SensorData{}))
	assert.ErrorContains(t, err, "not connected")
}

func newInfluxServer(t *testing.T) (*InfluxWriter, <-chan string) {
	t.Helper()
	bodies := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/write":
			assert.Equal(t, "greenhouse", r.URL.Query().Get("bucket"))
			body, _ := io.ReadAll(r.Body)
			bodies <- string(body)
			w.WriteHeader(http.StatusNoContent)
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"name": "influxdb", "status": "pass"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	writer, err := NewInfluxWriter(config.InfluxConfig{URL: srv.URL, Token: "tok", Org: "solanum", Bucket: "greenhouse"})
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })
	return writer, bodies
}

func TestInfluxWritesSensorPoints(t *testing.T) {
	writer, bodies := newInfluxServer(t)
	require.NoError(t, writer.Ping(context.Background()))

	err := writer.Publish(context.Background(), models.NewSensorUpdateEvent(&models.SensorData{
		Temperature: 21.5, Humidity: 48, Timestamp: "2026-10-17T08:00:00Z",
	}))
	require.NoError(t, err)

	select {
	case body := <-bodies:
		assert.Contains(t, body, "greenhouse_climate,source=pi")
		assert.Contains(t, body, "temperature=21.5")
		assert.Contains(t, body, "humidity=48")
	default:
		t.Fatal("no point written")
	}
}

func TestInfluxSkipsOtherEvents(t *testing.T) {
	writer, bodies := newInfluxServer(t)
	msg := "sensor timeout"

	require.NoError(t, writer.Publish(context.Background(), models.NewChatMessageEvent(&models.ChatMessage{})))
	require.NoError(t, writer.Publish(context.Background(), models.NewSensorUpdateEvent(&models.SensorData{Error: &msg})))
	assert.Empty(t, bodies)
}

func TestInfluxRequiresCompleteConfig(t *testing.T) {
	_, err := NewInfluxWriter(config.InfluxConfig{URL: "http://localhost:8086"})
	assert.Error(t, err)
}

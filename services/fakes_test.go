package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"solanum/database"
	"solanum/grok"
	"solanum/models"
	"solanum/pi"
)

type fakeStore struct {
	mu         sync.Mutex
	readings   []models.SensorReading
	analyses   []models.Analysis
	commands   []models.Command
	chat       []models.ChatMessage
	pruneCalls []time.Time
	nextID     int64
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) InsertSensorReading(ctx context.Context, temperature, humidity float64) (*models.SensorReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := models.SensorReading{ID: s.id(), Temperature: temperature, Humidity: humidity, CreatedAt: time.Now()}
	s.readings = append([]models.SensorReading{r}, s.readings...)
	return &r, nil
}

func (s *fakeStore) GetRecentSensorReadings(ctx context.Context, limit int) ([]models.SensorReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.readings) {
		limit = len(s.readings)
	}
	return append([]models.SensorReading{}, s.readings[:limit]...), nil
}

func (s *fakeStore) PruneSensorReadings(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneCalls = append(s.pruneCalls, before)
	return 0, nil
}

func (s *fakeStore) InsertAnalysis(ctx context.Context, a *models.Analysis) (*models.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *a
	stored.ID = s.id()
	s.analyses = append(s.analyses, stored)
	return &stored, nil
}

func (s *fakeStore) GetLatestAnalysis(ctx context.Context) (*models.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.analyses) == 0 {
		return nil, database.ErrNotFound
	}
	a := s.analyses[len(s.analyses)-1]
	return &a, nil
}

func (s *fakeStore) InsertCommand(ctx context.Context, cmd *models.Command) (*models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *cmd
	stored.ID = s.id()
	s.commands = append(s.commands, stored)
	return &stored, nil
}

func (s *fakeStore) GetLastWatering(ctx context.Context) (*models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.commands) - 1; i >= 0; i-- {
		if c := s.commands[i]; c.CommandType == models.ActionWater && (c.Success || c.PumpStarted) {
			return &c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) InsertChatMessage(ctx context.Context, role models.ChatRole, content string) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := models.ChatMessage{ID: s.id(), Role: role, Content: content, CreatedAt: time.Now()}
	s.chat = append(s.chat, m)
	return &m, nil
}

func (s *fakeStore) GetChatHistory(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.chat) - limit
	if start < 0 {
		start = 0
	}
	return append([]models.ChatMessage{}, s.chat[start:]...), nil
}

type relayCall struct {
	relay models.Relay
	on    bool
}

type fakeDevice struct {
	mu         sync.Mutex
	sensors    *models.SensorData
	sensorErr  error
	relays     models.RelayState
	relayErr   error
	image      []byte
	captureErr error
	calls      []relayCall
	// failOff makes switching a relay off fail
	failOff bool
	// onErr is returned after switching a relay on, or instead of it for a DeviceError
	onErr error
}

func (d *fakeDevice) GetSensors(ctx context.Context) (*models.SensorData, error) {
	if d.sensorErr != nil {
		return nil, d.sensorErr
	}
	if d.sensors == nil {
		return &models.SensorData{Temperature: 22, Humidity: 50, Timestamp: time.Now().UTC().Format(time.RFC3339)}, nil
	}
	s := *d.sensors
	return &s, nil
}

func (d *fakeDevice) GetRelays(ctx context.Context) (*models.RelayState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.relayErr != nil {
		return nil, d.relayErr
	}
	r := d.relays
	return &r, nil
}

func (d *fakeDevice) SetRelay(ctx context.Context, relay models.Relay, on bool) (*models.RelayState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, relayCall{relay, on})
	if d.relayErr != nil {
		return nil, d.relayErr
	}
	if !on && d.failOff {
		return nil, errors.New("relay stuck")
	}
	var devErr *pi.DeviceError
	if on && errors.As(d.onErr, &devErr) {
		return nil, d.onErr
	}
	if relay == models.RelayLight {
		d.relays.Light = on
	} else {
		d.relays.Water = on
	}
	if on && d.onErr != nil {
		return nil, d.onErr
	}
	r := d.relays
	return &r, nil
}

func (d *fakeDevice) waterOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.relays.Water
}

func (d *fakeDevice) Capture(ctx context.Context) ([]byte, error) {
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	if d.image == nil {
		return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
	}
	return d.image, nil
}

func (d *fakeDevice) relayCalls() []relayCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]relayCall{}, d.calls...)
}

type fakeModel struct {
	analysis   *models.AnalysisResponse
	analyzeErr error
	reply      string
	block      chan struct{}

	mu          sync.Mutex
	lastContext grok.AnalysisContext
	lastHistory []models.ChatMessage
	lastSummary string
}

func (m *fakeModel) Analyze(ctx context.Context, image []byte, ac grok.AnalysisContext) (*models.AnalysisResponse, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.lastContext = ac
	m.mu.Unlock()
	if m.analyzeErr != nil {
		return nil, m.analyzeErr
	}
	return m.analysis, nil
}

func (m *fakeModel) Chat(ctx context.Context, history []models.ChatMessage, userMessage string, summary string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHistory = history
	m.lastSummary = summary
	return m.reply, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.WebSocketEvent
}

func (e *recordingEmitter) Emit(event models.WebSocketEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) types() []models.WebSocketEventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.WebSocketEventType
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

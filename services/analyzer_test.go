package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"solanum/config"
	"solanum/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchedule() Schedule {
	return NewSchedule(config.SchedulerConfig{
		LightOnHour:           6,
		LightOffHour:          22,
		DayIntervalMinutes:    30,
		NightIntervalMinutes:  120,
		SensorIntervalMinutes: 5,
		Location:              time.UTC,
	})
}

type analyzerFixture struct {
	store    *fakeStore
	device   *fakeDevice
	model    *fakeModel
	events   *recordingEmitter
	guard    *ClimateGuard
	analyzer *Analyzer
}

func newAnalyzerFixture(resp *models.AnalysisResponse) *analyzerFixture {
	f := &analyzerFixture{
		store:  &fakeStore{},
		device: &fakeDevice{},
		model:  &fakeModel{analysis: resp},
		events: &recordingEmitter{},
	}
	executor := NewExecutor(f.store, f.device, f.events, time.Millisecond, time.Hour)
	f.guard = NewClimateGuard(DefaultClimateThresholds(), nil)
	f.analyzer = NewAnalyzer(f.store, f.device, f.model, executor, f.events, f.guard, testSchedule())
	return f
}

func TestAnalyzePersistsAndExecutes(t *testing.T) {
	f := newAnalyzerFixture(&models.AnalysisResponse{
		HealthScore:     72.4,
		SoilAssessment:  "dry",
		LightAssessment: "adequate",
		Actions: []models.Action{
			{Type: models.ActionWater, Reason: "dry", Execute: true},
			{Type: models.ActionLightOn, Reason: "maybe later", Execute: false},
			{Type: "fertilize", Reason: "unknown", Execute: true},
		},
		Message: "Thirsty",
	})
	f.device.sensors = &models.SensorData{Temperature: 35, Humidity: 50, Timestamp: "2026-10-17T12:00:00Z"}
	f.guard.Observe(*f.device.sensors, time.Now())

	analysis, err := f.analyzer.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 72, analysis.HealthScore)
	assert.NotEmpty(t, analysis.ImageBase64)
	assert.Len(t, analysis.Actions, 2)
	require.Len(t, f.store.analyses, 1)

	// only the executable water action ran
	require.Len(t, f.store.commands, 1)
	assert.Equal(t, models.ActionWater, f.store.commands[0].CommandType)

	assert.Equal(t, []models.WebSocketEventType{models.EventAnalysisUpdate, models.EventCommandExecuted}, f.events.types())

	// the alert from the last poll reached the model
	require.NotEmpty(t, f.model.lastContext.Alerts)
	assert.Equal(t, "temperature_high", f.model.lastContext.Alerts[0].AlertType)
}

func TestAnalyzeRejectsConcurrentRuns(t *testing.T) {
	f := newAnalyzerFixture(&models.AnalysisResponse{HealthScore: 50})
	f.model.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.analyzer.Analyze(context.Background())
		done <- err
	}()
	require.Eventually(t, f.analyzer.Running, time.Second, 5*time.Millisecond)

	_, err := f.analyzer.AnalyzeImage(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ErrBusy)

	close(f.model.block)
	assert.NoError(t, <-done)
	assert.False(t, f.analyzer.Running())
}

func TestAnalyzeCaptureFailure(t *testing.T) {
	f := newAnalyzerFixture(&models.AnalysisResponse{})
	f.device.captureErr = errors.New("camera busy")

	_, err := f.analyzer.Analyze(context.Background())
	require.Error(t, err)
	assert.Empty(t, f.store.analyses)
	assert.Empty(t, f.events.types())
}

func TestAnalyzeImageWithoutSensors(t *testing.T) {
	f := newAnalyzerFixture(&models.AnalysisResponse{HealthScore: 88, SoilAssessment: "moist", LightAssessment: "bright"})
	f.device.sensorErr = errors.New("offline")
	f.device.relayErr = errors.New("offline")

	analysis, err := f.analyzer.AnalyzeImage(context.Background(), []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, 88, analysis.HealthScore)
	assert.Nil(t, f.model.lastContext.Sensors)
	assert.Nil(t, f.model.lastContext.Relays)
}

func TestAnalyzeModelFailure(t *testing.T) {
	f := newAnalyzerFixture(nil)
	f.model.analyzeErr = errors.New("rate limited")

	_, err := f.analyzer.AnalyzeImage(context.Background(), []byte{1})
	require.Error(t, err)
	assert.Empty(t, f.store.analyses)
}

func TestAnalyzeImageRejectsEmpty(t *testing.T) {
	f := newAnalyzerFixture(nil)
	_, err := f.analyzer.AnalyzeImage(context.Background(), nil)
	assert.Error(t, err)
}

func TestAnalyzeLeavesGuardWindowAlone(t *testing.T) {
	f := newAnalyzerFixture(&models.AnalysisResponse{HealthScore: 80})
	fault := "DHT22 read failed"
	for i := 0; i < 2; i++ {
		f.guard.Observe(models.SensorData{Error: &fault}, time.Now())
	}
	f.device.sensors = &models.SensorData{Error: &fault}

	for i := 0; i < 3; i++ {
		_, err := f.analyzer.Analyze(context.Background())
		require.NoError(t, err)
	}

	// two polled faults stay below the repeated-fault threshold
	assert.Empty(t, f.guard.Alerts())
	assert.Empty(t, f.model.lastContext.Alerts)
}

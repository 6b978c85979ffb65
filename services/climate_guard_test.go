package services

import (
	"testing"
	"time"

	"solanum/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alertTypes(alerts []models.ClimateAlert) []string {
	var out []string
	for _, a := range alerts {
		out = append(out, a.AlertType)
	}
	return out
}

func TestClimateGuardThresholds(t *testing.T) {
	var raised []models.ClimateAlert
	g := NewClimateGuard(DefaultClimateThresholds(), func(a models.ClimateAlert) { raised = append(raised, a) })
	now := time.Now()

	assert.Empty(t, g.Observe(models.SensorData{Temperature: 22, Humidity: 55}, now))

	alerts := g.Observe(models.SensorData{Temperature: 10, Humidity: 90}, now.Add(time.Hour))
	assert.ElementsMatch(t, []string{"temperature_low", "humidity_high"}, alertTypes(alerts))
	assert.Len(t, raised, 2)
	assert.Equal(t, alerts, g.Alerts())
}

func TestClimateGuardRapidChange(t *testing.T) {
	g := NewClimateGuard(DefaultClimateThresholds(), nil)
	start := time.Now()

	g.Observe(models.SensorData{Temperature: 18, Humidity: 50}, start)
	g.Observe(models.SensorData{Temperature: 21, Humidity: 50}, start.Add(10*time.Minute))
	alerts := g.Observe(models.SensorData{Temperature: 25, Humidity: 50}, start.Add(20*time.Minute))

	assert.Equal(t, []string{"rapid_temperature_change"}, alertTypes(alerts))
}

func TestClimateGuardRepeatedFaults(t *testing.T) {
	g := NewClimateGuard(DefaultClimateThresholds(), nil)
	msg := "timeout"
	now := time.Now()

	for i := 0; i < 2; i++ {
		assert.Empty(t, g.Observe(models.SensorData{Error: &msg}, now))
	}
	alerts := g.Observe(models.SensorData{Error: &msg}, now)
	require.Len(t, alerts, 1)
	assert.Equal(t, "repeated_sensor_faults", alerts[0].AlertType)
	assert.Equal(t, "high", alerts[0].Severity)
}

func TestSlidingWindowWraps(t *testing.T) {
	w := NewSlidingWindow(3)
	for i := 1; i <= 5; i++ {
		w.add(observation{data: models.SensorData{Temperature: float64(i)}})
	}

	recent := w.recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, 3.0, recent[0].data.Temperature)
	assert.Equal(t, 5.0, recent[2].data.Temperature)
	assert.Equal(t, 5.0, w.recent(1)[0].data.Temperature)
}

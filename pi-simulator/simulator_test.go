package main

import (
	"bytes"
	"context"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solanum/models"
	"solanum/pi"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSimClient drives the simulator through the real Pi client
func newSimClient(t *testing.T, sim *PiSimulator) *pi.Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(sim.Router())
	t.Cleanup(srv.Close)
	return pi.NewClient(pi.Config{BaseURL: srv.URL, APIKey: "key", Timeout: 2 * time.Second, BreakerFailures: 3})
}

func TestSimulatorSensorsStayInRange(t *testing.T) {
	sim := NewPiSimulator("key", 0, 0, 1)
	for i := 0; i < 500; i++ {
		data := sim.readSensors()
		require.False(t, data.HasError())
		require.GreaterOrEqual(t, data.Temperature, 12.0)
		require.LessOrEqual(t, data.Temperature, 38.0)
		require.GreaterOrEqual(t, data.Humidity, 20.0)
		require.LessOrEqual(t, data.Humidity, 95.0)
	}
}

func TestSimulatorFaultInjection(t *testing.T) {
	sim := NewPiSimulator("key", 1, 0, 1)
	data := sim.readSensors()
	assert.True(t, data.HasError())
}

func TestSimulatorServesPiContract(t *testing.T) {
	sim := NewPiSimulator("key", 0, 0, 7)
	client := newSimClient(t, sim)
	ctx := context.Background()

	st := client.Status(ctx)
	assert.Equal(t, models.PiOnline, st.Status)

	relays, err := client.SetRelay(ctx, models.RelayLight, true)
	require.NoError(t, err)
	assert.True(t, relays.Light)

	img, err := client.Capture(ctx)
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(img))
	assert.NoError(t, err)
}

func TestSimulatorRejectsMissingKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sim := NewPiSimulator("key", 0, 0, 1)

	w := httptest.NewRecorder()
	sim.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sensors", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSimulatorWaterSafetyTimeout(t *testing.T) {
	sim := NewPiSimulator("", 0, 20*time.Millisecond, 1)
	sim.setRelay(models.RelayWater, true)
	assert.True(t, sim.relayState().Water)

	assert.Eventually(t, func() bool { return !sim.relayState().Water }, time.Second, 5*time.Millisecond)
}

func TestSimulatorStaleTimeoutKeepsNewCycle(t *testing.T) {
	sim := NewPiSimulator("", 0, time.Hour, 1)
	sim.setRelay(models.RelayWater, true)

	sim.mutex.Lock()
	staleCycle := sim.waterCycle
	sim.mutex.Unlock()

	// a callback from the first cycle that lost the race with a new "on"
	sim.setRelay(models.RelayWater, true)
	sim.waterTimeout(staleCycle)
	assert.True(t, sim.relayState().Water)

	sim.mutex.Lock()
	current := sim.waterCycle
	sim.mutex.Unlock()
	sim.waterTimeout(current)
	assert.False(t, sim.relayState().Water)
}

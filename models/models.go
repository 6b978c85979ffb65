package models

import (
	"time"
)

// SensorReading is a persisted temperature/humidity measurement
type SensorReading struct {
	ID          int64     `json:"id" db:"id"`
	Temperature float64   `json:"temperature" db:"temperature"`
	Humidity    float64   `json:"humidity" db:"humidity"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// SensorData is a live snapshot reported by the Pi
type SensorData struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Timestamp   string  `json:"timestamp"`
	Error       *string `json:"error"`
}

// HasError reports whether the Pi flagged the snapshot as failed
func (s *SensorData) HasError() bool {
	return s.Error != nil && *s.Error != ""
}

// Action is a directive recommended by the analysis model
type Action struct {
	Type    ActionType `json:"type"`
	Reason  string     `json:"reason"`
	Execute bool       `json:"execute"`
}

// Analysis is a stored assessment of a captured plant image
type Analysis struct {
	ID               int64           `json:"id"`
	HealthScore      int             `json:"healthScore"`
	Observations     []string        `json:"observations"`
	Issues           []string        `json:"issues"`
	SoilAssessment   SoilAssessment  `json:"soilAssessment"`
	LightAssessment  LightAssessment `json:"lightAssessment"`
	Actions          []Action        `json:"actions"`
	Message          string          `json:"message"`
	DetailedThoughts string          `json:"detailedThoughts"`
	ImageBase64      string          `json:"imageBase64,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Command records an action that was actually carried out. PumpStarted is
// kept off the wire; it marks water commands that may have run the pump.
type Command struct {
	ID          int64      `json:"id" db:"id"`
	CommandType ActionType `json:"commandType" db:"command_type"`
	Reason      string     `json:"reason" db:"reason"`
	Success     bool       `json:"success" db:"success"`
	Error       *string    `json:"error" db:"error"`
	PumpStarted bool       `json:"-" db:"pump_started"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
}

// ChatMessage is a single conversation turn
type ChatMessage struct {
	ID        int64     `json:"id" db:"id"`
	Role      ChatRole  `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is returned from POST /api/chat
type ChatResponse struct {
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"createdAt"`
}

// RelayState is the on/off status of both actuators
type RelayState struct {
	Light bool `json:"light"`
	Water bool `json:"water"`
}

// PiStatus aggregates device connectivity, sensors and relays
type PiStatus struct {
	Status    PiConnectivity `json:"status"`
	Sensors   *SensorData    `json:"sensors"`
	Relays    *RelayState    `json:"relays"`
	Timestamp string         `json:"timestamp"`
}

// RelayCommand switches a single relay
type RelayCommand struct {
	State *bool `json:"state"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StateResponse is the dashboard snapshot
type StateResponse struct {
	Analysis      *Analysis       `json:"analysis"`
	RecentSensors []SensorReading `json:"recentSensors"`
	PiStatus      PiStatus        `json:"piStatus"`
}

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
}

// ClimateThresholds bounds acceptable greenhouse conditions
type ClimateThresholds struct {
	TemperatureMin float64 `json:"temperatureMin"`
	TemperatureMax float64 `json:"temperatureMax"`
	HumidityMin    float64 `json:"humidityMin"`
	HumidityMax    float64 `json:"humidityMax"`
}

// ClimateAlert describes a reading outside ClimateThresholds
type ClimateAlert struct {
	AlertType string `json:"alertType"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

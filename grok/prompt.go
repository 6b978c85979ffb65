package grok

import (
	"fmt"
	"strings"
	"time"

	"solanum/models"
)

const analysisSystemPrompt = `You are the caretaker of a single potted plant in a small indoor greenhouse.
You can water the plant and switch its grow light. Study the photo and the climate data, then reply
with ONLY a JSON object of this shape:
{
  "health_score": 0-100,
  "observations": ["..."],
  "issues": ["..."],
  "soil_assessment": "dry" | "moist" | "wet" | "unknown",
  "light_assessment": "dark" | "low" | "adequate" | "bright",
  "actions": [{"type": "water" | "light_on" | "light_off" | "none", "reason": "...", "execute": true | false}],
  "message": "one or two friendly sentences for the owner",
  "detailed_thoughts": "your full reasoning"
}
Set "execute" to true only when the action should happen now. Never water soil that looks wet.`

const chatSystemPrompt = `You are the voice of a plant living in a small greenhouse. Answer the owner's
questions about your health and care in a warm, concise way, grounded in the data below.`

// AnalysisContext is the climate data sent alongside a photo
type AnalysisContext struct {
	Now     time.Time
	Sensors *models.SensorData
	Relays  *models.RelayState
	Recent  []models.SensorReading
	Alerts  []models.ClimateAlert
	LightOn bool // whether the schedule currently wants the light on
}

// Prompt renders the context as text for the model
func (ac AnalysisContext) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Local time: %s\n", ac.Now.Format("2006-01-02 15:04 MST"))

	if ac.Sensors != nil && !ac.Sensors.HasError() {
		fmt.Fprintf(&b, "Temperature: %.1f°C, humidity: %.0f%%\n", ac.Sensors.Temperature, ac.Sensors.Humidity)
	} else {
		b.WriteString("Current sensor data unavailable\n")
	}

	if ac.Relays != nil {
		fmt.Fprintf(&b, "Grow light: %s, water pump: %s\n", onOff(ac.Relays.Light), onOff(ac.Relays.Water))
	}
	fmt.Fprintf(&b, "Light schedule: light should be %s now\n", onOff(ac.LightOn))

	if len(ac.Recent) > 0 {
		minT, maxT := ac.Recent[0].Temperature, ac.Recent[0].Temperature
		minH, maxH := ac.Recent[0].Humidity, ac.Recent[0].Humidity
		for _, r := range ac.Recent[1:] {
			minT, maxT = min(minT, r.Temperature), max(maxT, r.Temperature)
			minH, maxH = min(minH, r.Humidity), max(maxH, r.Humidity)
		}
		fmt.Fprintf(&b, "Last %d readings: temperature %.1f-%.1f°C, humidity %.0f-%.0f%%\n",
			len(ac.Recent), minT, maxT, minH, maxH)
	}

	for _, a := range ac.Alerts {
		fmt.Fprintf(&b, "Alert (%s): %s\n", a.Severity, a.Message)
	}
	return b.String()
}

// Summary renders the latest analysis and readings for the chat system prompt
func Summary(latest *models.Analysis, recent []models.SensorReading) string {
	var b strings.Builder
	if latest != nil {
		fmt.Fprintf(&b, "Latest check (%s): health %d/100, soil %s, light %s. %s\n",
			latest.CreatedAt.Format(time.RFC3339), latest.HealthScore,
			latest.SoilAssessment, latest.LightAssessment, latest.Message)
		if len(latest.Issues) > 0 {
			fmt.Fprintf(&b, "Known issues: %s\n", strings.Join(latest.Issues, "; "))
		}
	} else {
		b.WriteString("No photo analysis yet.\n")
	}
	if len(recent) > 0 {
		r := recent[0]
		fmt.Fprintf(&b, "Latest reading (%s): %.1f°C, %.0f%% humidity\n",
			r.CreatedAt.Format(time.RFC3339), r.Temperature, r.Humidity)
	}
	return b.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

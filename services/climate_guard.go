package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"solanum/models"
)

// ClimateGuard checks readings against thresholds and recent history
type ClimateGuard struct {
	thresholds    models.ClimateThresholds
	window        *SlidingWindow
	latest        []models.ClimateAlert
	mutex         sync.RWMutex
	alertCallback func(models.ClimateAlert)
}

type observation struct {
	data models.SensorData
	at   time.Time
}

// SlidingWindow keeps the most recent observations in a ring buffer
type SlidingWindow struct {
	items    []observation
	maxSize  int
	position int
	full     bool
}

// DefaultClimateThresholds suit most potted houseplants
func DefaultClimateThresholds() models.ClimateThresholds {
	return models.ClimateThresholds{
		TemperatureMin: 15.0,
		TemperatureMax: 32.0,
		HumidityMin:    30.0,
		HumidityMax:    85.0,
	}
}

// NewClimateGuard creates a guard; alertCallback may be nil
func NewClimateGuard(thresholds models.ClimateThresholds, alertCallback func(models.ClimateAlert)) *ClimateGuard {
	return &ClimateGuard{
		thresholds:    thresholds,
		window:        NewSlidingWindow(24),
		alertCallback: alertCallback,
	}
}

func NewSlidingWindow(maxSize int) *SlidingWindow {
	return &SlidingWindow{
		items:   make([]observation, maxSize),
		maxSize: maxSize,
	}
}

func (sw *SlidingWindow) add(o observation) {
	sw.items[sw.position] = o
	sw.position = (sw.position + 1) % sw.maxSize
	if !sw.full && sw.position == 0 {
		sw.full = true
	}
}

// recent returns up to n observations, oldest first
func (sw *SlidingWindow) recent(n int) []observation {
	var all []observation
	if !sw.full {
		all = sw.items[:sw.position]
	} else {
		all = make([]observation, sw.maxSize)
		for i := 0; i < sw.maxSize; i++ {
			all[i] = sw.items[(sw.position+i)%sw.maxSize]
		}
	}
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Observe records a reading and returns the alerts it raises
func (g *ClimateGuard) Observe(data models.SensorData, at time.Time) []models.ClimateAlert {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.window.add(observation{data: data, at: at})

	var alerts []models.ClimateAlert
	if !data.HasError() {
		alerts = append(alerts, g.thresholdViolations(data)...)
		if a, ok := g.rapidTemperatureChange(); ok {
			alerts = append(alerts, a)
		}
	}
	if a, ok := g.repeatedSensorFaults(); ok {
		alerts = append(alerts, a)
	}

	g.latest = alerts
	for _, alert := range alerts {
		if g.alertCallback != nil {
			g.alertCallback(alert)
		}
	}
	return alerts
}

// Alerts returns the alerts raised by the most recent observation
func (g *ClimateGuard) Alerts() []models.ClimateAlert {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return append([]models.ClimateAlert(nil), g.latest...)
}

func (g *ClimateGuard) thresholdViolations(data models.SensorData) []models.ClimateAlert {
	var alerts []models.ClimateAlert
	t := g.thresholds

	if data.Temperature < t.TemperatureMin {
		alerts = append(alerts, models.ClimateAlert{
			AlertType: "temperature_low",
			Severity:  "medium",
			Message:   fmt.Sprintf("Temperature below minimum threshold: %.1f°C (min: %.1f)", data.Temperature, t.TemperatureMin),
		})
	} else if data.Temperature > t.TemperatureMax {
		alerts = append(alerts, models.ClimateAlert{
			AlertType: "temperature_high",
			Severity:  "high",
			Message:   fmt.Sprintf("Temperature above maximum threshold: %.1f°C (max: %.1f)", data.Temperature, t.TemperatureMax),
		})
	}

	if data.Humidity < t.HumidityMin {
		alerts = append(alerts, models.ClimateAlert{
			AlertType: "humidity_low",
			Severity:  "medium",
			Message:   fmt.Sprintf("Humidity below minimum threshold: %.0f%% (min: %.0f)", data.Humidity, t.HumidityMin),
		})
	} else if data.Humidity > t.HumidityMax {
		alerts = append(alerts, models.ClimateAlert{
			AlertType: "humidity_high",
			Severity:  "medium",
			Message:   fmt.Sprintf("Humidity above maximum threshold: %.0f%% (max: %.0f)", data.Humidity, t.HumidityMax),
		})
	}
	return alerts
}

// rapidTemperatureChange flags swings above 5°C per hour across the last few good readings
func (g *ClimateGuard) rapidTemperatureChange() (models.ClimateAlert, bool) {
	var good []observation
	for _, o := range g.window.recent(5) {
		if !o.data.HasError() {
			good = append(good, o)
		}
	}
	if len(good) < 3 {
		return models.ClimateAlert{}, false
	}

	first, last := good[0], good[len(good)-1]
	hours := last.at.Sub(first.at).Hours()
	if hours <= 0 {
		return models.ClimateAlert{}, false
	}
	rate := (last.data.Temperature - first.data.Temperature) / hours
	if rate > 5.0 || rate < -5.0 {
		return models.ClimateAlert{
			AlertType: "rapid_temperature_change",
			Severity:  "medium",
			Message:   fmt.Sprintf("Rapid temperature change: %.1f°C per hour", rate),
		}, true
	}
	return models.ClimateAlert{}, false
}

func (g *ClimateGuard) repeatedSensorFaults() (models.ClimateAlert, bool) {
	recent := g.window.recent(10)
	faults := 0
	for _, o := range recent {
		if o.data.HasError() {
			faults++
		}
	}
	if faults >= 3 {
		return models.ClimateAlert{
			AlertType: "repeated_sensor_faults",
			Severity:  "high",
			Message:   fmt.Sprintf("Sensor failed %d times in the last %d readings", faults, len(recent)),
		}, true
	}
	return models.ClimateAlert{}, false
}

// LogAlert is the default alert callback
func LogAlert(alert models.ClimateAlert) {
	log.Printf("Climate alert [%s] %s: %s", alert.Severity, alert.AlertType, alert.Message)
}

package services

import (
	"time"

	"solanum/config"
)

// Schedule answers lighting and cadence questions for a point in time
type Schedule struct {
	onHour, offHour int
	day, night      time.Duration
	sensors         time.Duration
	loc             *time.Location
}

func NewSchedule(cfg config.SchedulerConfig) Schedule {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return Schedule{
		onHour:  cfg.LightOnHour,
		offHour: cfg.LightOffHour,
		day:     time.Duration(cfg.DayIntervalMinutes) * time.Minute,
		night:   time.Duration(cfg.NightIntervalMinutes) * time.Minute,
		sensors: time.Duration(cfg.SensorIntervalMinutes) * time.Minute,
		loc:     loc,
	}
}

// IsDaytime reports whether t falls in [onHour, offHour).
// An off hour earlier than the on hour wraps past midnight.
func (s Schedule) IsDaytime(t time.Time) bool {
	h := t.In(s.loc).Hour()
	switch {
	case s.onHour == s.offHour:
		return false
	case s.onHour < s.offHour:
		return h >= s.onHour && h < s.offHour
	default:
		return h >= s.onHour || h < s.offHour
	}
}

// DesiredLightState is true while the grow light should be on
func (s Schedule) DesiredLightState(t time.Time) bool {
	return s.IsDaytime(t)
}

// AnalysisInterval is the wait before the next photo analysis
func (s Schedule) AnalysisInterval(t time.Time) time.Duration {
	if s.IsDaytime(t) {
		return s.day
	}
	return s.night
}

func (s Schedule) SensorInterval() time.Duration {
	return s.sensors
}

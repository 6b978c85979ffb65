package models

import "strings"

// SoilAssessment is the model's judgement of soil moisture
type SoilAssessment string

const (
	SoilDry     SoilAssessment = "dry"
	SoilMoist   SoilAssessment = "moist"
	SoilWet     SoilAssessment = "wet"
	SoilUnknown SoilAssessment = "unknown"
)

func (s SoilAssessment) Valid() bool {
	switch s {
	case SoilDry, SoilMoist, SoilWet, SoilUnknown:
		return true
	}
	return false
}

// LightAssessment is the model's judgement of available light
type LightAssessment string

const (
	LightDark     LightAssessment = "dark"
	LightLow      LightAssessment = "low"
	LightAdequate LightAssessment = "adequate"
	LightBright   LightAssessment = "bright"
)

func (l LightAssessment) Valid() bool {
	switch l {
	case LightDark, LightLow, LightAdequate, LightBright:
		return true
	}
	return false
}

// ActionType names an actuator directive
type ActionType string

const (
	ActionWater    ActionType = "water"
	ActionLightOn  ActionType = "light_on"
	ActionLightOff ActionType = "light_off"
	ActionNone     ActionType = "none"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionWater, ActionLightOn, ActionLightOff, ActionNone:
		return true
	}
	return false
}

// ChatRole tags who authored a chat turn
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

func (r ChatRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// PiConnectivity is the reachability of the Pi service
type PiConnectivity string

const (
	PiOnline  PiConnectivity = "online"
	PiOffline PiConnectivity = "offline"
	PiError   PiConnectivity = "error"
)

// Relay names one of the two actuators
type Relay string

const (
	RelayLight Relay = "light"
	RelayWater Relay = "water"
)

// ParseRelay accepts a relay name in any case
func ParseRelay(s string) (Relay, bool) {
	switch Relay(strings.ToLower(strings.TrimSpace(s))) {
	case RelayLight:
		return RelayLight, true
	case RelayWater:
		return RelayWater, true
	}
	return "", false
}

func normalizeSoil(s SoilAssessment) SoilAssessment {
	s = SoilAssessment(strings.ToLower(strings.TrimSpace(string(s))))
	if !s.Valid() {
		return SoilUnknown
	}
	return s
}

func normalizeLight(l LightAssessment) LightAssessment {
	l = LightAssessment(strings.ToLower(strings.TrimSpace(string(l))))
	if !l.Valid() {
		return LightLow
	}
	return l
}

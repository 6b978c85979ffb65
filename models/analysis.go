package models

import (
	"math"
	"strings"
	"time"
)

// AnalysisResponse is the JSON object the vision model is asked to return
type AnalysisResponse struct {
	HealthScore      float64         `json:"health_score"`
	Observations     []string        `json:"observations"`
	Issues           []string        `json:"issues"`
	SoilAssessment   SoilAssessment  `json:"soil_assessment"`
	LightAssessment  LightAssessment `json:"light_assessment"`
	Actions          []Action        `json:"actions"`
	Message          string          `json:"message"`
	DetailedThoughts string          `json:"detailed_thoughts"`
}

// ToAnalysis normalizes a model response into an Analysis ready to persist.
// Enumerations outside the known sets are coerced and unknown actions dropped.
func (r *AnalysisResponse) ToAnalysis(imageBase64 string, now time.Time) *Analysis {
	score := int(math.Round(r.HealthScore))
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	actions := make([]Action, 0, len(r.Actions))
	for _, a := range r.Actions {
		a.Type = ActionType(strings.ToLower(strings.TrimSpace(string(a.Type))))
		if !a.Type.Valid() {
			continue
		}
		if a.Type == ActionNone {
			a.Execute = false
		}
		actions = append(actions, a)
	}

	return &Analysis{
		HealthScore:      score,
		Observations:     nonNil(r.Observations),
		Issues:           nonNil(r.Issues),
		SoilAssessment:   normalizeSoil(r.SoilAssessment),
		LightAssessment:  normalizeLight(r.LightAssessment),
		Actions:          actions,
		Message:          r.Message,
		DetailedThoughts: r.DetailedThoughts,
		ImageBase64:      imageBase64,
		CreatedAt:        now,
	}
}

// ExecutableActions returns the actions flagged for execution
func (a *Analysis) ExecutableActions() []Action {
	var out []Action
	for _, act := range a.Actions {
		if act.Execute && act.Type != ActionNone {
			out = append(out, act)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

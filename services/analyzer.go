package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"solanum/grok"
	"solanum/metrics"
	"solanum/models"
)

// ErrBusy is returned when an analysis is already running
var ErrBusy = errors.New("analysis already in progress")

const recentReadingsForAnalysis = 12

// Analyzer runs the photo -> model -> actions pipeline
type Analyzer struct {
	store    Store
	device   Device
	model    Model
	executor *Executor
	events   Emitter
	guard    *ClimateGuard
	schedule Schedule
	running  atomic.Bool
	now      func() time.Time
}

func NewAnalyzer(store Store, device Device, model Model, executor *Executor, events Emitter, guard *ClimateGuard, schedule Schedule) *Analyzer {
	return &Analyzer{
		store:    store,
		device:   device,
		model:    model,
		executor: executor,
		events:   events,
		guard:    guard,
		schedule: schedule,
		now:      time.Now,
	}
}

// Analyze captures a fresh photo from the Pi and analyzes it
func (a *Analyzer) Analyze(ctx context.Context) (*models.Analysis, error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer a.running.Store(false)

	image, err := a.device.Capture(ctx)
	if err != nil {
		metrics.ObserveAnalysis(err)
		return nil, fmt.Errorf("failed to capture image: %w", err)
	}
	return a.run(ctx, image)
}

// AnalyzeImage analyzes a photo pushed by the Pi
func (a *Analyzer) AnalyzeImage(ctx context.Context, image []byte) (*models.Analysis, error) {
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}
	if !a.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer a.running.Store(false)

	return a.run(ctx, image)
}

// Running reports whether an analysis is in progress
func (a *Analyzer) Running() bool {
	return a.running.Load()
}

func (a *Analyzer) run(ctx context.Context, image []byte) (analysis *models.Analysis, err error) {
	defer func() { metrics.ObserveAnalysis(err) }()
	now := a.now()

	ac := grok.AnalysisContext{Now: now, LightOn: a.schedule.DesiredLightState(now)}

	// Climate context is best effort; the photo alone is enough to analyze.
	// Alerts come from the last scheduled poll so the guard's windows keep
	// a steady sampling rate.
	if sensors, err := a.device.GetSensors(ctx); err != nil {
		log.Printf("Analysis: sensors unavailable: %v", err)
	} else {
		ac.Sensors = sensors
	}
	ac.Alerts = a.guard.Alerts()
	if relays, err := a.device.GetRelays(ctx); err != nil {
		log.Printf("Analysis: relays unavailable: %v", err)
	} else {
		ac.Relays = relays
	}
	if recent, err := a.store.GetRecentSensorReadings(ctx, recentReadingsForAnalysis); err != nil {
		log.Printf("Analysis: recent readings unavailable: %v", err)
	} else {
		ac.Recent = recent
	}

	resp, err := a.model.Analyze(ctx, image, ac)
	if err != nil {
		return nil, fmt.Errorf("model analysis failed: %w", err)
	}

	analysis, err = a.store.InsertAnalysis(ctx, resp.ToAnalysis(base64.StdEncoding.EncodeToString(image), now))
	if err != nil {
		return nil, err
	}
	log.Printf("Analysis %d: health %d, soil %s, light %s, %d actions",
		analysis.ID, analysis.HealthScore, analysis.SoilAssessment, analysis.LightAssessment, len(analysis.Actions))

	a.events.Emit(models.NewAnalysisUpdateEvent(analysis))

	for _, action := range analysis.ExecutableActions() {
		if _, err := a.executor.Execute(ctx, action); err != nil {
			log.Printf("Action %s failed: %v", action.Type, err)
		}
	}
	return analysis, nil
}

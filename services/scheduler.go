package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"solanum/metrics"
	"solanum/models"
)

const (
	lightCheckInterval = time.Minute
	retentionInterval  = 24 * time.Hour
)

// Scheduler runs the background loops: sensor polling, periodic analysis,
// light schedule enforcement and sensor retention.
type Scheduler struct {
	store     Store
	device    Device
	analyzer  *Analyzer
	executor  *Executor
	events    Emitter
	guard     *ClimateGuard
	schedule  Schedule
	retention time.Duration
	wg        sync.WaitGroup
	now       func() time.Time

	// FirstAnalysisDelay postpones the first scheduled analysis after Start
	FirstAnalysisDelay time.Duration
}

func NewScheduler(store Store, device Device, analyzer *Analyzer, executor *Executor, events Emitter, guard *ClimateGuard, schedule Schedule, retention time.Duration) *Scheduler {
	return &Scheduler{
		store:              store,
		device:             device,
		analyzer:           analyzer,
		executor:           executor,
		events:             events,
		guard:              guard,
		schedule:           schedule,
		retention:          retention,
		now:                time.Now,
		FirstAnalysisDelay: 30 * time.Second,
	}
}

// Start launches the loops; they stop when ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(4)
	go s.every(ctx, s.schedule.SensorInterval(), s.PollSensors)
	go s.every(ctx, lightCheckInterval, s.SyncLight)
	go s.every(ctx, retentionInterval, s.Prune)
	go s.analysisLoop(ctx)

	log.Printf("Scheduler started: sensors every %s, analysis every %s (day) / %s (night)",
		s.schedule.SensorInterval(), s.schedule.day, s.schedule.night)
}

// Wait blocks until every loop has returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// every runs fn immediately and then on each tick
func (s *Scheduler) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer s.wg.Done()

	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// analysisLoop re-arms its timer after every run because the interval depends on the time of day
func (s *Scheduler) analysisLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.FirstAnalysisDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.RunAnalysis(ctx)
			next := s.schedule.AnalysisInterval(s.now())
			log.Printf("Next analysis in %s", next)
			timer.Reset(next)
		}
	}
}

// PollSensors reads the Pi once. Good readings are stored and checked;
// every outcome, failures included, is broadcast.
func (s *Scheduler) PollSensors(ctx context.Context) {
	data, err := s.device.GetSensors(ctx)
	metrics.ObserveSensorPoll(err)
	if err != nil {
		msg := err.Error()
		data = &models.SensorData{Timestamp: s.now().UTC().Format(time.RFC3339), Error: &msg}
		log.Printf("Sensor poll failed: %v", err)
	}

	s.guard.Observe(*data, s.now())

	if !data.HasError() {
		if _, err := s.store.InsertSensorReading(ctx, data.Temperature, data.Humidity); err != nil {
			log.Printf("Failed to store sensor reading: %v", err)
		}
	}

	s.events.Emit(models.NewSensorUpdateEvent(data))
}

// SyncLight switches the grow light when it disagrees with the schedule
func (s *Scheduler) SyncLight(ctx context.Context) {
	relays, err := s.device.GetRelays(ctx)
	if err != nil {
		log.Printf("Light schedule check skipped: %v", err)
		return
	}

	desired := s.schedule.DesiredLightState(s.now())
	if relays.Light == desired {
		return
	}

	action := models.Action{Type: models.ActionLightOff, Reason: "schedule", Execute: true}
	if desired {
		action.Type = models.ActionLightOn
	}
	if _, err := s.executor.Execute(ctx, action); err != nil {
		log.Printf("Scheduled %s failed: %v", action.Type, err)
	}
}

// RunAnalysis triggers one analysis, skipping quietly if one is already running
func (s *Scheduler) RunAnalysis(ctx context.Context) {
	if _, err := s.analyzer.Analyze(ctx); err != nil {
		if errors.Is(err, ErrBusy) {
			log.Println("Scheduled analysis skipped: another analysis is running")
			return
		}
		log.Printf("Scheduled analysis failed: %v", err)
	}
}

// Prune deletes sensor readings older than the retention period
func (s *Scheduler) Prune(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	n, err := s.store.PruneSensorReadings(ctx, s.now().Add(-s.retention))
	if err != nil {
		log.Printf("Sensor retention failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Pruned %d sensor readings older than %s", n, s.retention)
	}
}

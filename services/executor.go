package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"solanum/database"
	"solanum/metrics"
	"solanum/models"
	"solanum/pi"
)

// ErrCooldown is returned when watering is requested too soon after the last watering
var ErrCooldown = errors.New("water cooldown active")

var errWaterStopped = errors.New("water stopped manually")

const relayOffTimeout = 10 * time.Second

// Executor turns actions into relay switches and records them as commands
type Executor struct {
	store         Store
	device        Device
	events        Emitter
	waterDuration time.Duration
	waterCooldown time.Duration
	mutex         sync.Mutex
	now           func() time.Time

	// cycleMutex guards stopCycle, which interrupts the running watering cycle
	cycleMutex sync.Mutex
	stopCycle  context.CancelCauseFunc
}

func NewExecutor(store Store, device Device, events Emitter, waterDuration, waterCooldown time.Duration) *Executor {
	return &Executor{
		store:         store,
		device:        device,
		events:        events,
		waterDuration: waterDuration,
		waterCooldown: waterCooldown,
		now:           time.Now,
	}
}

// Execute carries out a single action. Actions not flagged for execution
// and "none" actions return (nil, nil).
func (e *Executor) Execute(ctx context.Context, action models.Action) (*models.Command, error) {
	if !action.Execute || action.Type == models.ActionNone {
		return nil, nil
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	switch action.Type {
	case models.ActionLightOn, models.ActionLightOff:
		_, err := e.device.SetRelay(ctx, models.RelayLight, action.Type == models.ActionLightOn)
		return e.record(ctx, action.Type, action.Reason, false, err)

	case models.ActionWater:
		if err := e.checkCooldown(ctx); err != nil {
			return e.record(ctx, action.Type, action.Reason, false, err)
		}
		started, err := e.water(ctx)
		return e.record(ctx, action.Type, action.Reason, started, err)

	default:
		return nil, fmt.Errorf("unsupported action type: %q", action.Type)
	}
}

// StopWater switches the pump off immediately. A running watering cycle is
// interrupted first and records its own outcome.
func (e *Executor) StopWater(ctx context.Context, reason string) (*models.Command, error) {
	e.cycleMutex.Lock()
	if e.stopCycle != nil {
		e.stopCycle(errWaterStopped)
	}
	e.cycleMutex.Unlock()

	e.mutex.Lock()
	defer e.mutex.Unlock()

	_, err := e.device.SetRelay(ctx, models.RelayWater, false)
	if err != nil {
		err = fmt.Errorf("failed to stop water: %w", err)
	}
	return e.record(ctx, models.ActionWater, reason, false, err)
}

// checkCooldown measures from the last watering that reached the pump,
// including cycles that were interrupted or failed to switch off.
func (e *Executor) checkCooldown(ctx context.Context) error {
	if e.waterCooldown <= 0 {
		return nil
	}
	last, err := e.store.GetLastWatering(ctx)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check water cooldown: %w", err)
	}

	if since := e.now().Sub(last.CreatedAt); since < e.waterCooldown {
		return fmt.Errorf("%w: last watering %s ago", ErrCooldown, since.Round(time.Second))
	}
	return nil
}

// water runs one pump cycle and reports whether the pump may have run.
// The off command is always sent, even when switching on failed or the
// wait was interrupted.
func (e *Executor) water(ctx context.Context) (bool, error) {
	cycleCtx, cancel := context.WithCancelCause(ctx)
	e.cycleMutex.Lock()
	e.stopCycle = cancel
	e.cycleMutex.Unlock()
	defer func() {
		e.cycleMutex.Lock()
		e.stopCycle = nil
		e.cycleMutex.Unlock()
		cancel(nil)
	}()

	started := true
	var cycleErr error
	if _, err := e.device.SetRelay(cycleCtx, models.RelayWater, true); err != nil {
		// a timed out request may still have reached the relay
		var devErr *pi.DeviceError
		started = !errors.As(err, &devErr)
		cycleErr = fmt.Errorf("failed to start water: %w", err)
	} else {
		timer := time.NewTimer(e.waterDuration)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-cycleCtx.Done():
			cycleErr = fmt.Errorf("watering interrupted: %w", context.Cause(cycleCtx))
		}
	}

	offCtx, cancelOff := context.WithTimeout(context.WithoutCancel(ctx), relayOffTimeout)
	defer cancelOff()
	if _, err := e.device.SetRelay(offCtx, models.RelayWater, false); err != nil {
		log.Printf("CRITICAL: failed to switch water off: %v", err)
		return started, errors.Join(cycleErr, fmt.Errorf("failed to stop water: %w", err))
	}
	return started, cycleErr
}

// record persists the outcome and announces it. The action error, if any, is returned.
func (e *Executor) record(ctx context.Context, commandType models.ActionType, reason string, pumpStarted bool, actionErr error) (*models.Command, error) {
	cmd := &models.Command{
		CommandType: commandType,
		Reason:      reason,
		Success:     actionErr == nil,
		PumpStarted: pumpStarted,
		CreatedAt:   e.now(),
	}
	if actionErr != nil {
		msg := actionErr.Error()
		cmd.Error = &msg
	}
	metrics.ObserveCommand(string(commandType), cmd.Success)

	saved, err := e.store.InsertCommand(context.WithoutCancel(ctx), cmd)
	if err != nil {
		log.Printf("Failed to persist %s command: %v", commandType, err)
		saved = cmd
	}

	log.Printf("Command %s (%s): success=%t", commandType, reason, saved.Success)
	e.events.Emit(models.NewCommandExecutedEvent(saved))
	return saved, actionErr
}

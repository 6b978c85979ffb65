package services

import (
	"context"
	"log"
	"time"

	"solanum/models"
)

const sinkTimeout = 5 * time.Second

// Hub delivers events to WebSocket clients
type Hub interface {
	Broadcast(event models.WebSocketEvent) error
}

// EventSink is an external mirror of the event stream (Kafka, MQTT, InfluxDB)
type EventSink interface {
	Name() string
	Publish(ctx context.Context, event models.WebSocketEvent) error
}

// Broadcaster fans every event out to the hub and the configured sinks.
// Hub delivery is immediate; sinks are fed from a queue by Run so a slow
// broker never stalls the caller. Sinks never receive analysis photos.
type Broadcaster struct {
	hub   Hub
	sinks []EventSink
	queue chan models.WebSocketEvent
}

func NewBroadcaster(hub Hub, sinks ...EventSink) *Broadcaster {
	return &Broadcaster{
		hub:   hub,
		sinks: sinks,
		queue: make(chan models.WebSocketEvent, 256),
	}
}

// Emit never fails; delivery problems are logged
func (b *Broadcaster) Emit(event models.WebSocketEvent) {
	if err := b.hub.Broadcast(event); err != nil {
		log.Printf("Failed to broadcast %s event: %v", event.Type, err)
	}

	if len(b.sinks) == 0 {
		return
	}
	select {
	case b.queue <- event.WithoutImage():
	default:
		log.Printf("Sink queue full, dropping %s event", event.Type)
	}
}

// Run drains the sink queue until ctx is cancelled
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.queue:
			b.publish(ctx, event)
		}
	}
}

func (b *Broadcaster) publish(ctx context.Context, event models.WebSocketEvent) {
	for _, sink := range b.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := sink.Publish(sctx, event); err != nil {
			log.Printf("Sink %s failed for %s event: %v", sink.Name(), event.Type, err)
		}
		cancel()
	}
}

// Event bridge — wires the domain event bus into the WebSocket hub for
// real-time dashboard updates. Every domain event fans out to all connected
// WebSocket clients.
package api

import (
	"context"

	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/message"
	"github.com/openig/igbot/pkg/logger"
)

// EventBridge forwards domain events from the event bus to WebSocket clients.
type EventBridge struct {
	bus domain.EventBus
	hub *WSHub
}

// NewEventBridge creates a bridge between the domain bus and the WS hub.
func NewEventBridge(bus domain.EventBus, hub *WSHub) *EventBridge {
	return &EventBridge{bus: bus, hub: hub}
}

// Run subscribes to all domain events and forwards them until ctx is done.
// Call this in a goroutine — it blocks until ctx is cancelled.
func (eb *EventBridge) Run(ctx context.Context) {
	logger.InfoC("events", "Event bridge started — forwarding domain events to WebSocket")

	cancel := eb.bus.SubscribeAll(func(ev domain.Event) {
		eb.hub.Broadcast(string(ev.EventType()), wirePayload(ev))
	})
	<-ctx.Done()
	cancel()
}

// wirePayload flattens an event for JSON transport. Messages get a compact
// summary; everything else passes through as-is.
func wirePayload(ev domain.Event) interface{} {
	data := map[string]interface{}{
		"aggregate_id": ev.AggregateID(),
	}
	switch p := ev.Payload().(type) {
	case *message.Message:
		data["message"] = messageSummary(p)
	default:
		data["payload"] = p
	}
	return data
}

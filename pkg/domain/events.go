package domain

import "time"

// ---------------------------------------------------------------------------
// Domain event system — every cross-context notification flows through here
// ---------------------------------------------------------------------------

// EventType classifies domain events for routing and filtering.
type EventType string

// Bounded context prefixes ensure global uniqueness of event names.
const (
	// Message context events
	EventMessageCreated EventType = "message.created"
	EventMessageSent    EventType = "message.sent"
	EventMessageFailed  EventType = "message.failed"
	EventMessageSeen    EventType = "message.seen"
	EventMessageUnsent  EventType = "message.unsent"

	// Client / realtime context events
	EventClientConnected    EventType = "client.connected"
	EventClientDisconnected EventType = "client.disconnected"
	EventClientError        EventType = "client.error"
	EventInboxSynced        EventType = "client.inbox_synced"

	// Session context events
	EventSessionRestored EventType = "session.restored"
	EventSessionSaved    EventType = "session.saved"
	EventSessionCleared  EventType = "session.cleared"

	// Collector context events
	EventCollectorStarted EventType = "collector.started"
	EventCollectorStopped EventType = "collector.stopped"

	// Module context events
	EventCommandExecuted EventType = "module.command.executed"
	EventModuleError     EventType = "module.error"

	// Relationship context events
	EventUserFollowed  EventType = "user.followed"
	EventUserBlocked   EventType = "user.blocked"
	EventUserUnblocked EventType = "user.unblocked"

	// Scheduler context events
	EventScheduledSend EventType = "scheduler.job.sent"

	// System-level events
	EventSystemStartup  EventType = "system.startup"
	EventSystemShutdown EventType = "system.shutdown"
)

// Event is the interface all domain events implement.
type Event interface {
	// EventType returns the classified event type.
	EventType() EventType
	// OccurredAt returns when the event happened.
	OccurredAt() time.Time
	// AggregateID returns the ID of the entity that produced this event.
	AggregateID() EntityID
	// Payload returns the event-specific data.
	Payload() interface{}
}

// BaseEvent provides a reusable implementation of the Event interface.
type BaseEvent struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	AggID     EntityID    `json:"aggregate_id"`
	EventData interface{} `json:"data,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() EntityID { return e.AggID }
func (e BaseEvent) Payload() interface{}  { return e.EventData }

// NewEvent creates a new domain event.
func NewEvent(eventType EventType, aggregateID EntityID, data interface{}) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		AggID:     aggregateID,
		EventData: data,
	}
}

// ---------------------------------------------------------------------------
// Event bus — decoupled cross-context communication
// ---------------------------------------------------------------------------

// EventHandler processes a domain event. Handlers should be idempotent:
// the realtime source guarantees at-least-once, not deduplicated, delivery.
type EventHandler func(Event)

// EventBus dispatches domain events to registered handlers. Subscriptions
// return a cancel function so transient observers (message collectors, await
// operations) can detach without tearing down the bus.
type EventBus interface {
	// Publish dispatches an event to all registered handlers.
	Publish(event Event)
	// Subscribe registers a handler for a specific event type.
	// The returned function removes the subscription; it is idempotent.
	Subscribe(eventType EventType, handler EventHandler) (cancel func())
	// SubscribeAll registers a handler that receives every event.
	SubscribeAll(handler EventHandler) (cancel func())
	// Close shuts down the event bus. Subsequent publishes are dropped.
	Close()
}

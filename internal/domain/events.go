package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event
type Event interface {
	// EventID returns the unique identifier for this event
	EventID() uuid.UUID
	// EventType returns the type name of this event
	EventType() string
	// OccurredAt returns when this event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent creates a new BaseEvent
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// EventHandler processes domain events
type EventHandler func(event Event)

// EventDispatcher manages event subscriptions and publishing. The monitoring
// couplings (health transition -> mode change -> log entry) subscribe here so
// each transition is handled exactly once regardless of call site.
type EventDispatcher struct {
	mu          sync.RWMutex
	handlers    map[string][]EventHandler
	allHandlers []EventHandler
}

// NewEventDispatcher creates a new event dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[string][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
func (d *EventDispatcher) Subscribe(eventType string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (d *EventDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allHandlers = append(d.allHandlers, handler)
}

// Publish dispatches an event to all registered handlers
func (d *EventDispatcher) Publish(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if handlers, ok := d.handlers[event.EventType()]; ok {
		for _, h := range handlers {
			h(event)
		}
	}
	for _, h := range d.allHandlers {
		h(event)
	}
}

// -----------------------------------------------------------------------------
// Health Events
// -----------------------------------------------------------------------------

// HealthStatusChangedEvent is published when the overall health status
// actually changes value, never on a tick that re-confirms it.
type HealthStatusChangedEvent struct {
	BaseEvent
	From    string   `json:"from"`
	To      string   `json:"to"`
	Reasons []string `json:"reasons,omitempty"`
}

// NewHealthStatusChangedEvent creates a new health status changed event
func NewHealthStatusChangedEvent(from, to string, reasons []string) HealthStatusChangedEvent {
	return HealthStatusChangedEvent{
		BaseEvent: NewBaseEvent("health.status_changed"),
		From:      from,
		To:        to,
		Reasons:   reasons,
	}
}

// -----------------------------------------------------------------------------
// Intervention Events
// -----------------------------------------------------------------------------

// InterventionFiredEvent is published when a trigger fires an intervention
type InterventionFiredEvent struct {
	BaseEvent
	InterventionID uuid.UUID `json:"intervention_id"`
	TriggerID      string    `json:"trigger_id"`
	TriggerType    string    `json:"trigger_type"`
	Level          string    `json:"level"`
}

// NewInterventionFiredEvent creates a new intervention fired event
func NewInterventionFiredEvent(interventionID uuid.UUID, triggerID, triggerType, level string) InterventionFiredEvent {
	return InterventionFiredEvent{
		BaseEvent:      NewBaseEvent("intervention.fired"),
		InterventionID: interventionID,
		TriggerID:      triggerID,
		TriggerType:    triggerType,
		Level:          level,
	}
}

// InterventionClosedEvent is published when an intervention reaches a
// terminal state (resolved or dismissed).
type InterventionClosedEvent struct {
	BaseEvent
	InterventionID uuid.UUID `json:"intervention_id"`
	TriggerID      string    `json:"trigger_id"`
	Outcome        string    `json:"outcome"` // resolved or dismissed
	Resolution     string    `json:"resolution,omitempty"`
}

// NewInterventionClosedEvent creates a new intervention closed event
func NewInterventionClosedEvent(interventionID uuid.UUID, triggerID, outcome, resolution string) InterventionClosedEvent {
	return InterventionClosedEvent{
		BaseEvent:      NewBaseEvent("intervention.closed"),
		InterventionID: interventionID,
		TriggerID:      triggerID,
		Outcome:        outcome,
		Resolution:     resolution,
	}
}

// -----------------------------------------------------------------------------
// Conversation Events
// -----------------------------------------------------------------------------

// ConversationEndedEvent is published when a non-empty conversation closes
type ConversationEndedEvent struct {
	BaseEvent
	SessionID    uuid.UUID `json:"session_id"`
	Mode         string    `json:"mode"`
	MessageCount int       `json:"message_count"`
}

// NewConversationEndedEvent creates a new conversation ended event
func NewConversationEndedEvent(sessionID uuid.UUID, mode string, messageCount int) ConversationEndedEvent {
	return ConversationEndedEvent{
		BaseEvent:    NewBaseEvent("conversation.ended"),
		SessionID:    sessionID,
		Mode:         mode,
		MessageCount: messageCount,
	}
}

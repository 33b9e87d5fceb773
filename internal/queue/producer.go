package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Producer publishes activity and notification messages
type Producer struct {
	conn *Connection
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishActivity publishes a domain activity message to the queue
func (p *Producer) PublishActivity(ctx context.Context, msg *ActivityMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, ActivityQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish activity: %w", err)
	}

	slog.Info("published activity",
		"activity_id", msg.ID,
		"event_type", msg.EventType,
		"entity_kind", msg.EntityKind,
		"entity_id", msg.EntityID,
	)

	return nil
}

// PublishNotification publishes a popup notification for local clients
func (p *Producer) PublishNotification(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, NotificationQueueName, n); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	slog.Info("published notification",
		"notification_id", n.ID,
		"intervention_id", n.InterventionID,
		"trigger_id", n.TriggerID,
	)

	return nil
}

// NewActivityMessage creates an activity message with the given parameters
func NewActivityMessage(eventType, entityKind, entityID string, payload map[string]any) *ActivityMessage {
	return &ActivityMessage{
		ID:         uuid.New(),
		EventType:  eventType,
		EntityKind: entityKind,
		EntityID:   entityID,
		Payload:    payload,
		OccurredAt: time.Now(),
	}
}

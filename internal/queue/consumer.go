package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ActivityHandler processes one activity message
type ActivityHandler func(ctx context.Context, msg *ActivityMessage) error

// Consumer consumes activity messages from the queue
type Consumer struct {
	conn       *Connection
	handler    ActivityHandler
	workers    int
	prefetch   int
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int // Number of concurrent workers
	Prefetch int // Prefetch count per worker
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  2,
		Prefetch: 1, // Process one at a time per worker for ordering
	}
}

// NewConsumer creates a new activity consumer
func NewConsumer(conn *Connection, handler ActivityHandler, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	// Set QoS (prefetch)
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	// Start consuming
	msgs, err := ch.Consume(
		ActivityQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting activity consumer", "workers", c.workers, "prefetch", c.prefetch)

	// Start worker goroutines
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	slog.Info("worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage handles a single message
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var activity ActivityMessage
	if err := json.Unmarshal(msg.Body, &activity); err != nil {
		slog.Error("failed to unmarshal activity",
			"worker_id", workerID,
			"error", err,
		)
		// Reject without requeue for malformed messages
		_ = msg.Reject(false)
		return
	}

	slog.Info("processing activity",
		"worker_id", workerID,
		"activity_id", activity.ID,
		"event_type", activity.EventType,
	)

	msgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.handler(msgCtx, &activity); err != nil {
		slog.Error("activity processing failed",
			"worker_id", workerID,
			"activity_id", activity.ID,
			"error", err,
			"duration", time.Since(start),
		)
		// Requeue once; a redelivered message that fails again is dropped
		_ = msg.Reject(!msg.Redelivered)
		return
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack message",
			"worker_id", workerID,
			"activity_id", activity.ID,
			"error", err,
		)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}

// NotificationConsumer consumes popup notifications (for a local client to
// surface to the user)
type NotificationConsumer struct {
	conn       *Connection
	handlers   map[string]NotificationHandler
	handlersMu sync.RWMutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NotificationHandler handles a notification for a specific intervention
type NotificationHandler func(n *Notification)

// NewNotificationConsumer creates a notification consumer
func NewNotificationConsumer(conn *Connection) *NotificationConsumer {
	return &NotificationConsumer{
		conn:     conn,
		handlers: make(map[string]NotificationHandler),
	}
}

// Subscribe registers a handler for notifications of a specific intervention
func (nc *NotificationConsumer) Subscribe(interventionID string, handler NotificationHandler) {
	nc.handlersMu.Lock()
	defer nc.handlersMu.Unlock()
	nc.handlers[interventionID] = handler
}

// Unsubscribe removes a handler
func (nc *NotificationConsumer) Unsubscribe(interventionID string) {
	nc.handlersMu.Lock()
	defer nc.handlersMu.Unlock()
	delete(nc.handlers, interventionID)
}

// Start begins consuming notifications
func (nc *NotificationConsumer) Start(ctx context.Context) error {
	ctx, nc.cancelFunc = context.WithCancel(ctx)

	ch := nc.conn.Channel()

	msgs, err := ch.Consume(
		NotificationQueueName,
		"",    // consumer tag
		true,  // auto-ack (notifications are fire-and-forget)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start notification consumer: %w", err)
	}

	nc.wg.Add(1)
	go nc.consume(ctx, msgs)

	return nil
}

func (nc *NotificationConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer nc.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var n Notification
			if err := json.Unmarshal(msg.Body, &n); err != nil {
				slog.Error("failed to unmarshal notification", "error", err)
				continue
			}

			// Find handler
			nc.handlersMu.RLock()
			handler, ok := nc.handlers[n.InterventionID.String()]
			nc.handlersMu.RUnlock()

			if ok {
				handler(&n)
			}
		}
	}
}

// Stop stops the notification consumer
func (nc *NotificationConsumer) Stop() {
	if nc.cancelFunc != nil {
		nc.cancelFunc()
	}
	nc.wg.Wait()
}

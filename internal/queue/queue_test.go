package queue_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"questpulse/internal/queue"
)

func TestActivityMessage_Serialization(t *testing.T) {
	msg := &queue.ActivityMessage{
		ID:         uuid.New(),
		EventType:  "task.completed",
		EntityKind: "task",
		EntityID:   "t1",
		EntityName: "Write the report",
		Payload:    map[string]any{"quest_id": "q1"},
		Source:     "cli",
		Importance: "medium",
		OccurredAt: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded queue.ActivityMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != msg.ID {
		t.Errorf("ID = %v; want %v", decoded.ID, msg.ID)
	}
	if decoded.EventType != "task.completed" || decoded.EntityID != "t1" {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Payload["quest_id"] != "q1" {
		t.Errorf("Payload = %v", decoded.Payload)
	}
}

func TestNewActivityMessage(t *testing.T) {
	msg := queue.NewActivityMessage("quest.created", "quest", "q1", nil)

	if msg.ID == uuid.Nil {
		t.Error("ID not generated")
	}
	if msg.OccurredAt.IsZero() {
		t.Error("OccurredAt not set")
	}
	if msg.EventType != "quest.created" || msg.EntityKind != "quest" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestNewActivityMessage_GeneratesUniqueIDs(t *testing.T) {
	a := queue.NewActivityMessage("x", "task", "t1", nil)
	b := queue.NewActivityMessage("x", "task", "t1", nil)

	if a.ID == b.ID {
		t.Error("two messages share an ID")
	}
}

func TestDefaultConsumerConfig(t *testing.T) {
	cfg := queue.DefaultConsumerConfig()

	if cfg.Workers != 2 {
		t.Errorf("Workers = %d; want 2", cfg.Workers)
	}
	if cfg.Prefetch != 1 {
		t.Errorf("Prefetch = %d; want 1", cfg.Prefetch)
	}
}

func TestNotification_Serialization(t *testing.T) {
	n := &queue.Notification{
		ID:             uuid.New(),
		InterventionID: uuid.New(),
		TriggerID:      "deadline_tomorrow",
		Message:        "A quest is due tomorrow.",
		CreatedAt:      time.Now().UTC(),
	}

	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded queue.Notification
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.InterventionID != n.InterventionID || decoded.TriggerID != n.TriggerID {
		t.Errorf("decoded = %+v", decoded)
	}
}

// Package intervention implements the lifecycle of the planner proactively
// reaching out: a single active intervention slot plus a bounded history of
// past ones.
package intervention

import (
	"time"

	"github.com/google/uuid"

	"questpulse/internal/trigger"
)

// Status is the lifecycle state of an intervention.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
	StatusInProgress   Status = "in_progress"
	StatusResolved     Status = "resolved"
	StatusDismissed    Status = "dismissed"
)

// IsTerminal reports whether the intervention has reached its end state.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusDismissed
}

// Intervention is one instance of the system reaching out to the user.
type Intervention struct {
	ID             uuid.UUID             `json:"id"`
	TriggerID      string                `json:"trigger_id"`
	TriggerType    string                `json:"trigger_type"`
	StartedAt      time.Time             `json:"started_at"`
	Status         Status                `json:"status"`
	CurrentLevel   trigger.ResponseLevel `json:"current_level"`
	AcknowledgedAt *time.Time            `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time            `json:"resolved_at,omitempty"`
	Resolution     string                `json:"resolution,omitempty"`
}

// newIntervention creates a pending intervention for a fired trigger.
func newIntervention(t trigger.Trigger, triggerType string, now time.Time) *Intervention {
	return &Intervention{
		ID:           uuid.New(),
		TriggerID:    t.ID,
		TriggerType:  triggerType,
		StartedAt:    now,
		Status:       StatusPending,
		CurrentLevel: t.ResponseLevel,
	}
}

package engine

import (
	"questpulse/internal/conversation"
	"questpulse/internal/eventlog"
	"questpulse/internal/intervention"
	"questpulse/internal/monitor"
	"questpulse/internal/tracker"
	"questpulse/internal/trigger"
)

// State is the flat serialization record for everything the engine owns.
// Functions (providers, stores) are rebuilt at startup and never persisted.
type State struct {
	Events              []eventlog.Entry            `json:"events"`
	Snapshot            monitor.Snapshot            `json:"snapshot"`
	Mode                monitor.Mode                `json:"mode"`
	Triggers            []trigger.Trigger           `json:"triggers"`
	ActiveIntervention  *intervention.Intervention  `json:"active_intervention,omitempty"`
	InterventionHistory []intervention.Intervention `json:"intervention_history,omitempty"`
	Conversation        conversation.Session        `json:"conversation"`
	Tracker             tracker.State               `json:"tracker"`
}

// Export captures the full engine state for persistence.
func (e *Engine) Export() State {
	var active *intervention.Intervention
	if iv, ok := e.interventions.Active(); ok {
		active = &iv
	}
	return State{
		Events:              e.log.Recent(eventlog.Capacity),
		Snapshot:            e.monitor.Snapshot(),
		Mode:                e.monitor.Mode(),
		Triggers:            e.triggers.All(),
		ActiveIntervention:  active,
		InterventionHistory: e.interventions.History(),
		Conversation:        e.conversations.Session(),
		Tracker:             e.tracker.Export(),
	}
}

// Restore replaces the engine state wholesale from a persisted record.
// Triggers restore through Merge so new defaults are picked up while the
// user's saved preferences and cooldown stamps win.
func (e *Engine) Restore(s State) {
	e.log.Restore(s.Events)
	e.monitor.Restore(s.Snapshot, s.Mode)
	e.triggers.Replace(trigger.Merge(trigger.Defaults(), s.Triggers))
	e.interventions.Restore(s.ActiveIntervention, s.InterventionHistory)
	e.conversations.Restore(s.Conversation)
	e.tracker.Restore(s.Tracker)

	if _, ok := e.interventions.Active(); ok {
		e.monitor.SetInterventionActive(true)
	}
}

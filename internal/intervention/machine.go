package intervention

import (
	"sync"
	"time"

	"questpulse/internal/domain"
	"questpulse/internal/trigger"
)

// HistoryCapacity bounds the archived interventions, newest first.
const HistoryCapacity = 100

// Machine owns the process-wide active intervention slot and its history.
// The cross-component side effects of each transition (conversation, mode,
// event log, cooldown stamp) belong to the engine; the machine only enforces
// the state transitions themselves.
type Machine struct {
	mu      sync.RWMutex
	active  *Intervention
	history []Intervention
}

// NewMachine creates a machine with an empty slot.
func NewMachine() *Machine {
	return &Machine{}
}

// Fire creates a pending intervention for the trigger. A trigger firing
// while another intervention is active is dropped with ErrInterventionActive
// rather than silently overwriting the slot.
func (m *Machine) Fire(t trigger.Trigger, triggerType string, now time.Time) (Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return Intervention{}, domain.ErrInterventionActive
	}
	m.active = newIntervention(t, triggerType, now)
	return *m.active, nil
}

// Acknowledge marks that the user opened or engaged with the intervention.
// Acknowledging again, or after escalation, is a no-op.
func (m *Machine) Acknowledge(now time.Time) (Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Intervention{}, domain.ErrNoActiveIntervention
	}
	if m.active.Status == StatusPending {
		m.active.Status = StatusAcknowledged
		at := now
		m.active.AcknowledgedAt = &at
	}
	return *m.active, nil
}

// Escalate moves the intervention to in_progress at coach level. Calling it
// again once at coach is idempotent. The bare conversation-mode switch that
// escalation also implies happens in the engine, with or without an active
// intervention.
func (m *Machine) Escalate(now time.Time) (Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Intervention{}, domain.ErrNoActiveIntervention
	}
	if m.active.Status == StatusPending || m.active.Status == StatusAcknowledged {
		m.active.Status = StatusInProgress
	}
	m.active.CurrentLevel = trigger.LevelCoach
	return *m.active, nil
}

// Resolve ends the intervention with an explicit resolution payload and
// archives it.
func (m *Machine) Resolve(resolution string, now time.Time) (Intervention, error) {
	return m.finish(StatusResolved, resolution, now)
}

// Dismiss ends the intervention without a resolution and archives it.
func (m *Machine) Dismiss(now time.Time) (Intervention, error) {
	return m.finish(StatusDismissed, "", now)
}

func (m *Machine) finish(status Status, resolution string, now time.Time) (Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Intervention{}, domain.ErrNoActiveIntervention
	}

	m.active.Status = status
	m.active.Resolution = resolution
	at := now
	m.active.ResolvedAt = &at

	done := *m.active
	m.active = nil

	m.history = append([]Intervention{done}, m.history...)
	if len(m.history) > HistoryCapacity {
		m.history = m.history[:HistoryCapacity]
	}
	return done, nil
}

// Active returns a copy of the active intervention, if any.
func (m *Machine) Active() (Intervention, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil {
		return Intervention{}, false
	}
	return *m.active, true
}

// History returns copies of archived interventions, newest first.
func (m *Machine) History() []Intervention {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Intervention, len(m.history))
	copy(out, m.history)
	return out
}

// Restore replaces the machine state wholesale from persisted state.
func (m *Machine) Restore(active *Intervention, history []Intervention) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if active != nil && !active.Status.IsTerminal() {
		copied := *active
		m.active = &copied
	} else {
		m.active = nil
	}
	if len(history) > HistoryCapacity {
		history = history[:HistoryCapacity]
	}
	m.history = make([]Intervention, len(history))
	copy(m.history, history)
}

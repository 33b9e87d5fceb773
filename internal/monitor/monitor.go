package monitor

import (
	"log/slog"
	"sync"
	"time"

	"questpulse/internal/domain"
	"questpulse/internal/eventlog"
)

// Mode is the planner's current watchfulness. It moves in lockstep with the
// overall status; an active intervention pins it until the intervention ends.
type Mode string

const (
	ModeObserving    Mode = "observing"
	ModeWatching     Mode = "watching"
	ModeAlert        Mode = "alert"
	ModeIntervention Mode = "intervention"
)

// modeFor maps an overall status to its monitoring mode.
func modeFor(status TrafficStatus) Mode {
	switch status {
	case StatusRed:
		return ModeAlert
	case StatusYellow:
		return ModeWatching
	default:
		return ModeObserving
	}
}

// Monitor owns the current snapshot and mode. Update replaces the snapshot
// atomically and handles the status-transition side effects exactly once per
// actual transition, never on a tick that re-confirms the same status.
type Monitor struct {
	mu                 sync.RWMutex
	snapshot           Snapshot
	mode               Mode
	interventionActive bool

	log        *eventlog.Log
	dispatcher *domain.EventDispatcher
	logger     *slog.Logger
}

// New creates a monitor in observing mode with an empty green snapshot.
func New(log *eventlog.Log, dispatcher *domain.EventDispatcher, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		snapshot:   Snapshot{OverallStatus: StatusGreen, TimeSinceLastCompletion: -1, WeeklyTrend: "stable", EnergyPattern: "unknown"},
		mode:       ModeObserving,
		log:        log,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Update recomputes the snapshot from the hierarchy and replaces it. The tick
// cadence is owned by an external scheduler; this is the primitive it calls.
func (m *Monitor) Update(h *domain.Hierarchy, now time.Time) Snapshot {
	fresh := Compute(h, now)

	m.mu.Lock()
	previous := m.snapshot.OverallStatus
	m.snapshot = fresh
	changed := fresh.OverallStatus != previous
	if changed && !m.interventionActive {
		m.mode = modeFor(fresh.OverallStatus)
	}
	m.mu.Unlock()

	if changed {
		importance := eventlog.ImportanceMedium
		if fresh.OverallStatus == StatusRed {
			importance = eventlog.ImportanceCritical
		}
		m.log.Append("health.status_changed",
			eventlog.EntityRef{Kind: "system", ID: "health"},
			map[string]any{
				"from":    string(previous),
				"to":      string(fresh.OverallStatus),
				"reasons": fresh.StatusReasons,
			},
			eventlog.Metadata{Source: "monitor", Importance: importance},
		)
		m.dispatcher.Publish(domain.NewHealthStatusChangedEvent(string(previous), string(fresh.OverallStatus), fresh.StatusReasons))
		m.logger.Info("health status changed",
			"from", previous,
			"to", fresh.OverallStatus,
			"reasons", fresh.StatusReasons,
		)
	}

	return fresh
}

// Snapshot returns the current snapshot.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Mode returns the current monitoring mode.
func (m *Monitor) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.interventionActive {
		return ModeIntervention
	}
	return m.mode
}

// SetInterventionActive pins the mode to intervention while true. Releasing
// it drops back to watching; the next Update re-derives the mode from the
// snapshot if the status moves again.
func (m *Monitor) SetInterventionActive(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interventionActive = active
	if !active {
		m.mode = ModeWatching
	}
}

// Restore replaces snapshot and mode wholesale from persisted state.
func (m *Monitor) Restore(s Snapshot, mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = s
	if mode != "" {
		m.mode = mode
	}
}

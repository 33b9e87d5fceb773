// Package engine composes the health monitor, trigger registry, intervention
// machine, conversation manager and trackers into one unit with a single
// writer. All cross-component side effects of an intervention transition
// live here so the component packages stay free of each other.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"questpulse/internal/assistant"
	"questpulse/internal/conversation"
	"questpulse/internal/domain"
	"questpulse/internal/eventlog"
	"questpulse/internal/intervention"
	"questpulse/internal/monitor"
	"questpulse/internal/tracker"
	"questpulse/internal/trigger"
)

// HierarchyStore supplies a point-in-time snapshot of the planning hierarchy.
type HierarchyStore interface {
	Load(ctx context.Context) (*domain.Hierarchy, error)
}

// Engine is the composition root for one user's productivity state.
type Engine struct {
	log           *eventlog.Log
	monitor       *monitor.Monitor
	triggers      *trigger.Registry
	interventions *intervention.Machine
	conversations *conversation.Manager
	tracker       *tracker.Tracker
	dispatcher    *domain.EventDispatcher

	hierarchy HierarchyStore
	logger    *slog.Logger
	now       func() time.Time
}

// Options configures optional engine collaborators.
type Options struct {
	HierarchyStore HierarchyStore
	Providers      *assistant.Registry
	Triggers       []trigger.Trigger
	Logger         *slog.Logger
	Now            func() time.Time
}

// New wires a fresh engine. The trigger set defaults to trigger.Defaults()
// when none is given.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Triggers == nil {
		opts.Triggers = trigger.Defaults()
	}

	dispatcher := domain.NewEventDispatcher()
	log := eventlog.New()

	return &Engine{
		log:           log,
		monitor:       monitor.New(log, dispatcher, opts.Logger),
		triggers:      trigger.NewRegistry(opts.Triggers),
		interventions: intervention.NewMachine(),
		conversations: conversation.NewManager(opts.Providers, log, dispatcher, opts.Logger),
		tracker:       tracker.New(),
		dispatcher:    dispatcher,
		hierarchy:     opts.HierarchyStore,
		logger:        opts.Logger,
		now:           opts.Now,
	}
}

// Events exposes the event log.
func (e *Engine) Events() *eventlog.Log { return e.log }

// Monitor exposes the health monitor.
func (e *Engine) Monitor() *monitor.Monitor { return e.monitor }

// Triggers exposes the trigger registry.
func (e *Engine) Triggers() *trigger.Registry { return e.triggers }

// Conversations exposes the conversation manager.
func (e *Engine) Conversations() *conversation.Manager { return e.conversations }

// Tracker exposes the auxiliary trackers.
func (e *Engine) Tracker() *tracker.Tracker { return e.tracker }

// Dispatcher exposes the in-process event dispatcher.
func (e *Engine) Dispatcher() *domain.EventDispatcher { return e.dispatcher }

// RecordActivity ingests one piece of domain activity: it is appended to the
// event log and the health snapshot is recomputed from the current hierarchy.
// The caller owns the cadence; every call recomputes.
func (e *Engine) RecordActivity(ctx context.Context, eventType string, entity eventlog.EntityRef, payload map[string]any, meta eventlog.Metadata) error {
	e.log.Append(eventType, entity, payload, meta)
	return e.RefreshHealth(ctx)
}

// RefreshHealth loads the hierarchy and recomputes the health snapshot.
// Transition side effects (status-change events, mode shifts) happen inside
// the monitor.
func (e *Engine) RefreshHealth(ctx context.Context) error {
	if e.hierarchy == nil {
		return nil
	}
	h, err := e.hierarchy.Load(ctx)
	if err != nil {
		return fmt.Errorf("load hierarchy: %w", err)
	}
	e.monitor.Update(h, e.now())
	return nil
}

// TriggerIntervention fires the named trigger. An unknown trigger id is a
// silent no-op. A trigger inside its cooldown window, or disabled, is also
// skipped. A trigger firing while an intervention is already active is
// dropped with ErrInterventionActive.
func (e *Engine) TriggerIntervention(ctx context.Context, triggerID, triggerType string) (intervention.Intervention, error) {
	t, ok := e.triggers.Get(triggerID)
	if !ok {
		e.logger.Debug("unknown trigger ignored", "trigger_id", triggerID)
		return intervention.Intervention{}, nil
	}

	now := e.now()
	if !e.triggers.CanFire(triggerID, now) {
		e.logger.Debug("trigger inside cooldown or disabled", "trigger_id", triggerID)
		return intervention.Intervention{}, nil
	}

	iv, err := e.interventions.Fire(t, triggerType, now)
	if err != nil {
		if errors.Is(err, domain.ErrInterventionActive) {
			e.logger.Info("trigger dropped, intervention already active", "trigger_id", triggerID)
		}
		return intervention.Intervention{}, err
	}

	e.monitor.SetInterventionActive(true)

	// A popup stays a notification; anything heavier opens a conversation
	// seeded with the trigger's canned opener.
	if t.ResponseLevel != trigger.LevelPopup {
		e.conversations.Open(conversationMode(t.ResponseLevel), map[string]any{
			"trigger_id":      triggerID,
			"trigger_type":    triggerType,
			"intervention_id": iv.ID.String(),
		})
		if t.Message != "" {
			e.conversations.AddMessage(conversation.NewAssistantMessage(
				conversationMode(t.ResponseLevel), t.Message, nil))
		}
	}

	e.log.Append("intervention.fired",
		eventlog.EntityRef{Kind: "intervention", ID: iv.ID.String()},
		map[string]any{
			"trigger_id":   triggerID,
			"trigger_type": triggerType,
			"level":        string(iv.CurrentLevel),
		},
		eventlog.Metadata{Source: "monitor", Importance: eventlog.ImportanceHigh},
	)
	e.dispatcher.Publish(domain.NewInterventionFiredEvent(iv.ID, triggerID, triggerType, string(iv.CurrentLevel)))
	e.logger.Info("intervention fired", "trigger_id", triggerID, "level", iv.CurrentLevel)
	return iv, nil
}

// OpenConversation opens an ad hoc session in the given mode and asks the
// assistant for an opener. No intervention backs the session; the user is
// simply checking in. Any session already open is replaced.
func (e *Engine) OpenConversation(ctx context.Context, mode conversation.Mode, extra map[string]any) (conversation.Session, *assistant.Response, error) {
	session := e.conversations.Open(mode, extra)

	resp, err := e.conversations.RequestInitialResponse(ctx, "check_in", e.monitor.Snapshot(), extra)
	if err != nil {
		// A failed opener leaves an empty shell of a session; close it so
		// the next attempt starts clean. A superseded one belongs to
		// whoever replaced it.
		if !errors.Is(err, conversation.ErrSuperseded) {
			e.conversations.Close()
		}
		return conversation.Session{}, nil, err
	}

	e.log.Append("conversation.started",
		eventlog.EntityRef{Kind: "conversation", ID: session.ID.String()},
		map[string]any{"mode": string(mode), "opened_by": "user"},
		eventlog.Metadata{Source: "conversation"},
	)
	e.logger.Info("conversation opened ad hoc", "session_id", session.ID, "mode", mode)
	return e.conversations.Session(), resp, nil
}

// AcknowledgeIntervention marks the active intervention as seen.
func (e *Engine) AcknowledgeIntervention() (intervention.Intervention, error) {
	return e.interventions.Acknowledge(e.now())
}

// EscalateIntervention escalates the active intervention to coach level and
// forces the conversation into coach mode. The mode switch applies even when
// no intervention is active; the user asking for the coach directly is valid.
func (e *Engine) EscalateIntervention() (intervention.Intervention, error) {
	e.conversations.SetMode(conversation.ModeCoach)

	iv, err := e.interventions.Escalate(e.now())
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveIntervention) {
			return intervention.Intervention{}, nil
		}
		return intervention.Intervention{}, err
	}
	e.logger.Info("intervention escalated", "intervention_id", iv.ID)
	return iv, nil
}

// ResolveIntervention closes the active intervention with a resolution.
func (e *Engine) ResolveIntervention(resolution string) (intervention.Intervention, error) {
	return e.closeIntervention(func(now time.Time) (intervention.Intervention, error) {
		return e.interventions.Resolve(resolution, now)
	})
}

// DismissIntervention closes the active intervention without a resolution.
func (e *Engine) DismissIntervention() (intervention.Intervention, error) {
	return e.closeIntervention(e.interventions.Dismiss)
}

func (e *Engine) closeIntervention(finish func(time.Time) (intervention.Intervention, error)) (intervention.Intervention, error) {
	now := e.now()
	iv, err := finish(now)
	if err != nil {
		return intervention.Intervention{}, err
	}

	e.triggers.Stamp(iv.TriggerID, now)
	e.monitor.SetInterventionActive(false)
	e.conversations.Close()

	e.log.Append("intervention.closed",
		eventlog.EntityRef{Kind: "intervention", ID: iv.ID.String()},
		map[string]any{
			"trigger_id": iv.TriggerID,
			"outcome":    string(iv.Status),
			"resolution": iv.Resolution,
		},
		eventlog.Metadata{Source: "monitor", Importance: eventlog.ImportanceMedium},
	)
	e.dispatcher.Publish(domain.NewInterventionClosedEvent(iv.ID, iv.TriggerID, string(iv.Status), iv.Resolution))
	e.logger.Info("intervention closed", "intervention_id", iv.ID, "outcome", iv.Status)
	return iv, nil
}

// ActiveIntervention returns the active intervention, if any.
func (e *Engine) ActiveIntervention() (intervention.Intervention, bool) {
	return e.interventions.Active()
}

// InterventionHistory returns past interventions, newest first.
func (e *Engine) InterventionHistory() []intervention.Intervention {
	return e.interventions.History()
}

// EvaluateTriggers inspects the current health snapshot and fires the first
// eligible trigger whose condition holds. Intended to be driven by an
// external scheduler tick.
func (e *Engine) EvaluateTriggers(ctx context.Context) (intervention.Intervention, bool) {
	snap := e.monitor.Snapshot()
	now := e.now()

	for _, cand := range []struct {
		id        string
		condition bool
	}{
		{"health_red", snap.OverallStatus == monitor.StatusRed},
		{"overdue_pileup", snap.OverdueQuestsCount+snap.OverdueChaptersCount >= 3},
		{"completion_drought", snap.TimeSinceLastCompletion >= 48*time.Hour},
		{"deadline_tomorrow", len(snap.AtRiskQuests) > 0},
	} {
		if !cand.condition || !e.triggers.CanFire(cand.id, now) {
			continue
		}
		iv, err := e.TriggerIntervention(ctx, cand.id, cand.id)
		if err != nil || iv.ID == uuid.Nil {
			return intervention.Intervention{}, false
		}
		return iv, true
	}
	return intervention.Intervention{}, false
}

// RecordPostpone bumps a task's postpone counter and fires the postpone
// streak trigger once the streak crosses the threshold.
func (e *Engine) RecordPostpone(ctx context.Context, taskID string) int {
	count := e.tracker.RecordPostpone(taskID)
	e.log.Append("task.postponed",
		eventlog.EntityRef{Kind: "task", ID: taskID},
		map[string]any{"postpone_count": count},
		eventlog.Metadata{Source: "user", Importance: eventlog.ImportanceMedium},
	)
	if count >= 3 {
		e.TriggerIntervention(ctx, "postpone_streak", "postpone_streak")
	}
	return count
}

func conversationMode(level trigger.ResponseLevel) conversation.Mode {
	if level == trigger.LevelCoach {
		return conversation.ModeCoach
	}
	return conversation.ModeFriend
}

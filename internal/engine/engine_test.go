package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"questpulse/internal/assistant"
	"questpulse/internal/conversation"
	"questpulse/internal/domain"
	"questpulse/internal/eventlog"
	"questpulse/internal/intervention"
	"questpulse/internal/monitor"
	"questpulse/internal/trigger"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local)

type fixedHierarchy struct {
	h   *domain.Hierarchy
	err error
}

func (f *fixedHierarchy) Load(context.Context) (*domain.Hierarchy, error) {
	return f.h, f.err
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	registry := assistant.NewRegistry()
	registry.Register("scripted", assistant.NewScriptedProvider())
	registry.SetDefault("scripted")

	return New(Options{
		HierarchyStore: &fixedHierarchy{h: &domain.Hierarchy{}},
		Providers:      registry,
		Now:            func() time.Time { return testNow },
	})
}

func TestTriggerInterventionUnknownIsNoOp(t *testing.T) {
	e := newTestEngine(t)

	iv, err := e.TriggerIntervention(context.Background(), "no_such_trigger", "whatever")
	if err != nil {
		t.Fatalf("TriggerIntervention() error = %v", err)
	}
	if iv.ID != uuid.Nil {
		t.Error("unknown trigger produced an intervention")
	}
	if _, ok := e.ActiveIntervention(); ok {
		t.Error("active slot occupied after unknown trigger")
	}
}

func TestTriggerInterventionOpensConversation(t *testing.T) {
	e := newTestEngine(t)

	iv, err := e.TriggerIntervention(context.Background(), "overdue_pileup", "overdue_pileup")
	if err != nil {
		t.Fatalf("TriggerIntervention() error = %v", err)
	}
	if iv.Status != intervention.StatusPending {
		t.Errorf("Status = %q, want pending", iv.Status)
	}

	session := e.Conversations().Session()
	if !session.IsOpen {
		t.Fatal("conversation did not open")
	}
	if session.Mode != conversation.ModeFriend {
		t.Errorf("session mode = %q, want friend", session.Mode)
	}
	if len(session.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 seeded opener", len(session.Messages))
	}
	if e.Monitor().Mode() != monitor.ModeIntervention {
		t.Errorf("monitor mode = %q, want intervention", e.Monitor().Mode())
	}

	entries := e.Events().ByType("intervention.fired", 5)
	if len(entries) != 1 {
		t.Errorf("intervention.fired entries = %d, want 1", len(entries))
	}
}

func TestTriggerInterventionPopupSkipsConversation(t *testing.T) {
	e := newTestEngine(t)

	iv, err := e.TriggerIntervention(context.Background(), "deadline_tomorrow", "deadline_tomorrow")
	if err != nil {
		t.Fatalf("TriggerIntervention() error = %v", err)
	}
	if iv.CurrentLevel != trigger.LevelPopup {
		t.Fatalf("CurrentLevel = %q, want popup", iv.CurrentLevel)
	}
	if e.Conversations().Session().IsOpen {
		t.Error("popup trigger opened a conversation")
	}
}

type brokenProvider struct{}

func (brokenProvider) Name() string { return "broken" }

func (brokenProvider) InitialResponse(context.Context, assistant.Persona, string, monitor.Snapshot, map[string]any) (*assistant.Response, error) {
	return nil, errors.New("provider offline")
}

func (brokenProvider) RespondToUser(context.Context, assistant.Persona, string, []assistant.Turn, monitor.Snapshot) (*assistant.Response, error) {
	return nil, errors.New("provider offline")
}

func TestOpenConversationAdHoc(t *testing.T) {
	e := newTestEngine(t)

	session, resp, err := e.OpenConversation(context.Background(), conversation.ModeCoach, nil)
	if err != nil {
		t.Fatalf("OpenConversation() error = %v", err)
	}
	if !session.IsOpen {
		t.Fatal("session did not open")
	}
	if session.Mode != conversation.ModeCoach {
		t.Errorf("session mode = %q, want coach", session.Mode)
	}
	if resp.Message == "" {
		t.Error("opener message was empty")
	}
	if len(session.Messages) != 1 {
		t.Errorf("len(Messages) = %d, want 1 opener", len(session.Messages))
	}
	if _, ok := e.ActiveIntervention(); ok {
		t.Error("ad hoc open occupied the intervention slot")
	}

	entries := e.Events().ByType("conversation.started", 5)
	if len(entries) != 1 {
		t.Errorf("conversation.started entries = %d, want 1", len(entries))
	}
}

func TestOpenConversationProviderFailureClosesSession(t *testing.T) {
	registry := assistant.NewRegistry()
	registry.Register("broken", brokenProvider{})
	registry.SetDefault("broken")

	e := New(Options{
		HierarchyStore: &fixedHierarchy{h: &domain.Hierarchy{}},
		Providers:      registry,
		Now:            func() time.Time { return testNow },
	})

	if _, _, err := e.OpenConversation(context.Background(), conversation.ModeFriend, nil); err == nil {
		t.Fatal("expected error from broken provider")
	}
	if e.Conversations().Session().IsOpen {
		t.Error("session left open after failed opener")
	}
}

func TestTriggerWhileActiveIsDropped(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.TriggerIntervention(context.Background(), "overdue_pileup", "overdue_pileup")
	if err != nil {
		t.Fatalf("first TriggerIntervention() error = %v", err)
	}
	if _, err := e.TriggerIntervention(context.Background(), "health_red", "health_red"); !errors.Is(err, domain.ErrInterventionActive) {
		t.Fatalf("second TriggerIntervention() error = %v, want ErrInterventionActive", err)
	}

	active, ok := e.ActiveIntervention()
	if !ok || active.ID != first.ID {
		t.Error("first intervention was displaced")
	}
}

func TestResolveStampsCooldownAndCloses(t *testing.T) {
	e := newTestEngine(t)
	e.TriggerIntervention(context.Background(), "overdue_pileup", "overdue_pileup")

	iv, err := e.ResolveIntervention("cleared the backlog")
	if err != nil {
		t.Fatalf("ResolveIntervention() error = %v", err)
	}
	if iv.Status != intervention.StatusResolved {
		t.Errorf("Status = %q, want resolved", iv.Status)
	}

	if _, ok := e.ActiveIntervention(); ok {
		t.Error("active slot not cleared")
	}
	if e.Conversations().Session().IsOpen {
		t.Error("conversation still open after resolve")
	}
	if e.Monitor().Mode() == monitor.ModeIntervention {
		t.Error("monitor mode still pinned to intervention")
	}
	if e.Triggers().CanFire("overdue_pileup", testNow.Add(time.Hour)) {
		t.Error("trigger fireable inside cooldown after resolve")
	}
	if !e.Triggers().CanFire("overdue_pileup", testNow.Add(5*time.Hour)) {
		t.Error("trigger still blocked after cooldown elapsed")
	}
	if got := len(e.Events().ByType("intervention.closed", 5)); got != 1 {
		t.Errorf("intervention.closed entries = %d, want 1", got)
	}
}

func TestDismissArchivesToHistory(t *testing.T) {
	e := newTestEngine(t)
	e.TriggerIntervention(context.Background(), "overdue_pileup", "overdue_pileup")

	if _, err := e.DismissIntervention(); err != nil {
		t.Fatalf("DismissIntervention() error = %v", err)
	}
	hist := e.InterventionHistory()
	if len(hist) != 1 {
		t.Fatalf("len(InterventionHistory()) = %d, want 1", len(hist))
	}
	if hist[0].Status != intervention.StatusDismissed {
		t.Errorf("history status = %q, want dismissed", hist[0].Status)
	}
}

func TestEscalateWithoutActiveStillSwitchesMode(t *testing.T) {
	e := newTestEngine(t)
	e.Conversations().Open(conversation.ModeFriend, nil)

	iv, err := e.EscalateIntervention()
	if err != nil {
		t.Fatalf("EscalateIntervention() error = %v", err)
	}
	if iv.ID != uuid.Nil {
		t.Error("escalation without an intervention returned one")
	}
	if got := e.Conversations().Session().Mode; got != conversation.ModeCoach {
		t.Errorf("session mode = %q, want coach", got)
	}
}

func TestEscalateActiveIntervention(t *testing.T) {
	e := newTestEngine(t)
	e.TriggerIntervention(context.Background(), "overdue_pileup", "overdue_pileup")

	iv, err := e.EscalateIntervention()
	if err != nil {
		t.Fatalf("EscalateIntervention() error = %v", err)
	}
	if iv.Status != intervention.StatusInProgress || iv.CurrentLevel != trigger.LevelCoach {
		t.Errorf("escalated to status %q level %q", iv.Status, iv.CurrentLevel)
	}
	if got := e.Conversations().Session().Mode; got != conversation.ModeCoach {
		t.Errorf("session mode = %q, want coach", got)
	}
}

func TestRecordActivityAppendsAndRefreshes(t *testing.T) {
	e := newTestEngine(t)

	err := e.RecordActivity(context.Background(), "task.completed",
		eventlog.EntityRef{Kind: "task", ID: "t1"},
		map[string]any{"quest_id": "q1"},
		eventlog.Metadata{Source: "user"},
	)
	if err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}
	if got := len(e.Events().ByType("task.completed", 5)); got != 1 {
		t.Errorf("task.completed entries = %d, want 1", got)
	}
	// Empty hierarchy computes green.
	if got := e.Monitor().Snapshot().OverallStatus; got != monitor.StatusGreen {
		t.Errorf("OverallStatus = %q, want green", got)
	}
}

func TestRecordPostponeFiresStreakTrigger(t *testing.T) {
	e := newTestEngine(t)

	e.RecordPostpone(context.Background(), "task-1")
	e.RecordPostpone(context.Background(), "task-1")
	if _, ok := e.ActiveIntervention(); ok {
		t.Fatal("streak trigger fired before threshold")
	}

	if got := e.RecordPostpone(context.Background(), "task-1"); got != 3 {
		t.Fatalf("RecordPostpone() = %d, want 3", got)
	}
	active, ok := e.ActiveIntervention()
	if !ok {
		t.Fatal("streak trigger did not fire at threshold")
	}
	if active.TriggerID != "postpone_streak" {
		t.Errorf("TriggerID = %q, want postpone_streak", active.TriggerID)
	}
}

func TestExportRestoreRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	e.TriggerIntervention(context.Background(), "overdue_pileup", "overdue_pileup")
	e.Tracker().RecordPostpone("task-9")

	state := e.Export()

	restored := newTestEngine(t)
	restored.Restore(state)

	active, ok := restored.ActiveIntervention()
	if !ok {
		t.Fatal("active intervention lost across restore")
	}
	if active.TriggerID != "overdue_pileup" {
		t.Errorf("TriggerID = %q, want overdue_pileup", active.TriggerID)
	}
	if restored.Monitor().Mode() != monitor.ModeIntervention {
		t.Errorf("monitor mode = %q, want intervention", restored.Monitor().Mode())
	}
	if count, ok := restored.Tracker().PostponeCount("task-9"); !ok || count != 1 {
		t.Errorf("PostponeCount = %d,%v, want 1,true", count, ok)
	}
	if got := len(restored.Triggers().All()); got < len(trigger.Defaults()) {
		t.Errorf("restored trigger count %d below default set %d", got, len(trigger.Defaults()))
	}
}

func TestRestoreMergesNewDefaultTriggers(t *testing.T) {
	e := newTestEngine(t)

	// Persisted state knows only one customized trigger.
	custom := trigger.Trigger{
		ID:            "overdue_pileup",
		ResponseLevel: trigger.LevelCoach,
		Message:       "custom opener",
		Cooldown:      time.Hour,
		Enabled:       false,
	}
	state := e.Export()
	state.Triggers = []trigger.Trigger{custom}
	e.Restore(state)

	got, ok := e.Triggers().Get("overdue_pileup")
	if !ok {
		t.Fatal("customized trigger missing after restore")
	}
	if got.Enabled || got.ResponseLevel != trigger.LevelCoach {
		t.Error("persisted customization did not win over the default")
	}
	if _, ok := e.Triggers().Get("health_red"); !ok {
		t.Error("default trigger absent from persisted state was not added")
	}
}

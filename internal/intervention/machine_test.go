package intervention

import (
	"errors"
	"testing"
	"time"

	"questpulse/internal/domain"
	"questpulse/internal/trigger"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local)

func friendTrigger() trigger.Trigger {
	return trigger.Trigger{
		ID:            "overdue_pileup",
		ResponseLevel: trigger.LevelFriend,
		Message:       "A few quests slipped past their deadlines.",
		Cooldown:      4 * time.Hour,
		Enabled:       true,
	}
}

func TestFireCreatesPendingAtTriggerLevel(t *testing.T) {
	m := NewMachine()

	iv, err := m.Fire(friendTrigger(), "overdue_pileup", testNow)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if iv.Status != StatusPending {
		t.Errorf("Status = %q, want %q", iv.Status, StatusPending)
	}
	if iv.CurrentLevel != trigger.LevelFriend {
		t.Errorf("CurrentLevel = %q, want %q", iv.CurrentLevel, trigger.LevelFriend)
	}
	if iv.TriggerID != "overdue_pileup" {
		t.Errorf("TriggerID = %q, want %q", iv.TriggerID, "overdue_pileup")
	}
	if _, ok := m.Active(); !ok {
		t.Error("Active() reports no intervention after Fire")
	}
}

func TestFireWhileActiveDoesNotOverwrite(t *testing.T) {
	m := NewMachine()

	first, err := m.Fire(friendTrigger(), "overdue_pileup", testNow)
	if err != nil {
		t.Fatalf("first Fire() error = %v", err)
	}

	second := friendTrigger()
	second.ID = "postpone_streak"
	if _, err := m.Fire(second, "postpone_streak", testNow.Add(time.Minute)); !errors.Is(err, domain.ErrInterventionActive) {
		t.Fatalf("second Fire() error = %v, want ErrInterventionActive", err)
	}

	active, ok := m.Active()
	if !ok {
		t.Fatal("Active() reports no intervention")
	}
	if active.ID != first.ID {
		t.Error("active intervention was overwritten by second Fire")
	}
}

func TestAcknowledge(t *testing.T) {
	m := NewMachine()
	m.Fire(friendTrigger(), "overdue_pileup", testNow)

	iv, err := m.Acknowledge(testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	if iv.Status != StatusAcknowledged {
		t.Errorf("Status = %q, want %q", iv.Status, StatusAcknowledged)
	}
	if iv.AcknowledgedAt == nil {
		t.Fatal("AcknowledgedAt not set")
	}

	// Acknowledging twice keeps the first timestamp.
	again, err := m.Acknowledge(testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Acknowledge() error = %v", err)
	}
	if !again.AcknowledgedAt.Equal(*iv.AcknowledgedAt) {
		t.Error("second Acknowledge changed AcknowledgedAt")
	}
}

func TestAcknowledgeWithoutActive(t *testing.T) {
	m := NewMachine()
	if _, err := m.Acknowledge(testNow); !errors.Is(err, domain.ErrNoActiveIntervention) {
		t.Errorf("Acknowledge() error = %v, want ErrNoActiveIntervention", err)
	}
}

func TestEscalateFromPending(t *testing.T) {
	m := NewMachine()
	m.Fire(friendTrigger(), "overdue_pileup", testNow)

	iv, err := m.Escalate(testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if iv.Status != StatusInProgress {
		t.Errorf("Status = %q, want %q", iv.Status, StatusInProgress)
	}
	if iv.CurrentLevel != trigger.LevelCoach {
		t.Errorf("CurrentLevel = %q, want %q", iv.CurrentLevel, trigger.LevelCoach)
	}
}

func TestEscalateIsIdempotent(t *testing.T) {
	m := NewMachine()
	m.Fire(friendTrigger(), "overdue_pileup", testNow)
	m.Escalate(testNow.Add(time.Minute))

	iv, err := m.Escalate(testNow.Add(2 * time.Minute))
	if err != nil {
		t.Fatalf("second Escalate() error = %v", err)
	}
	if iv.Status != StatusInProgress || iv.CurrentLevel != trigger.LevelCoach {
		t.Errorf("second Escalate changed state: status %q level %q", iv.Status, iv.CurrentLevel)
	}
}

func TestEscalateAfterAcknowledge(t *testing.T) {
	m := NewMachine()
	m.Fire(friendTrigger(), "overdue_pileup", testNow)
	m.Acknowledge(testNow.Add(time.Minute))

	iv, err := m.Escalate(testNow.Add(2 * time.Minute))
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if iv.Status != StatusInProgress {
		t.Errorf("Status = %q, want %q", iv.Status, StatusInProgress)
	}
}

func TestResolveClearsSlotAndArchives(t *testing.T) {
	m := NewMachine()
	m.Fire(friendTrigger(), "overdue_pileup", testNow)

	done, err := m.Resolve("completed two overdue quests", testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if done.Status != StatusResolved {
		t.Errorf("Status = %q, want %q", done.Status, StatusResolved)
	}
	if done.Resolution != "completed two overdue quests" {
		t.Errorf("Resolution = %q", done.Resolution)
	}
	if done.ResolvedAt == nil {
		t.Error("ResolvedAt not set")
	}

	if _, ok := m.Active(); ok {
		t.Error("slot still occupied after Resolve")
	}
	hist := m.History()
	if len(hist) != 1 {
		t.Fatalf("len(History()) = %d, want 1", len(hist))
	}
	if hist[0].ID != done.ID {
		t.Error("history entry does not match resolved intervention")
	}
}

func TestDismissClearsSlotAndArchives(t *testing.T) {
	m := NewMachine()
	m.Fire(friendTrigger(), "overdue_pileup", testNow)

	done, err := m.Dismiss(testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("Dismiss() error = %v", err)
	}
	if done.Status != StatusDismissed {
		t.Errorf("Status = %q, want %q", done.Status, StatusDismissed)
	}
	if _, ok := m.Active(); ok {
		t.Error("slot still occupied after Dismiss")
	}
	if len(m.History()) != 1 {
		t.Errorf("len(History()) = %d, want 1", len(m.History()))
	}
}

func TestResolveWithoutActive(t *testing.T) {
	m := NewMachine()
	if _, err := m.Resolve("", testNow); !errors.Is(err, domain.ErrNoActiveIntervention) {
		t.Errorf("Resolve() error = %v, want ErrNoActiveIntervention", err)
	}
	if _, err := m.Dismiss(testNow); !errors.Is(err, domain.ErrNoActiveIntervention) {
		t.Errorf("Dismiss() error = %v, want ErrNoActiveIntervention", err)
	}
}

func TestHistoryNewestFirstAndCapped(t *testing.T) {
	m := NewMachine()

	for i := 0; i < HistoryCapacity+5; i++ {
		at := testNow.Add(time.Duration(i) * time.Hour)
		if _, err := m.Fire(friendTrigger(), "overdue_pileup", at); err != nil {
			t.Fatalf("Fire() %d error = %v", i, err)
		}
		if _, err := m.Dismiss(at.Add(time.Minute)); err != nil {
			t.Fatalf("Dismiss() %d error = %v", i, err)
		}
	}

	hist := m.History()
	if len(hist) != HistoryCapacity {
		t.Fatalf("len(History()) = %d, want %d", len(hist), HistoryCapacity)
	}
	if !hist[0].StartedAt.After(hist[1].StartedAt) {
		t.Error("history is not newest first")
	}
	// The oldest entries were dropped.
	oldest := hist[len(hist)-1]
	if oldest.StartedAt.Equal(testNow) {
		t.Error("oldest entry was not evicted at capacity")
	}
}

func TestRestore(t *testing.T) {
	m := NewMachine()
	m.Fire(friendTrigger(), "overdue_pileup", testNow)
	active, _ := m.Active()

	restored := NewMachine()
	restored.Restore(&active, []Intervention{{Status: StatusResolved}, {Status: StatusDismissed}})

	got, ok := restored.Active()
	if !ok || got.ID != active.ID {
		t.Error("Restore did not keep the active intervention")
	}
	if len(restored.History()) != 2 {
		t.Errorf("len(History()) = %d, want 2", len(restored.History()))
	}

	// A terminal intervention never re-occupies the slot.
	terminal := active
	terminal.Status = StatusResolved
	restored.Restore(&terminal, nil)
	if _, ok := restored.Active(); ok {
		t.Error("Restore accepted a terminal intervention into the slot")
	}
}

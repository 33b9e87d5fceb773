package monitor

import (
	"testing"
	"time"

	"questpulse/internal/domain"
	"questpulse/internal/eventlog"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local)

func ts(d time.Duration) string {
	return now.Add(d).Format(time.RFC3339)
}

func overdueHierarchy(overdueTasks int) *domain.Hierarchy {
	h := &domain.Hierarchy{}
	for i := 0; i < overdueTasks; i++ {
		h.Tasks = append(h.Tasks, domain.Task{
			ID:       string(rune('a' + i)),
			Status:   domain.StatusActive,
			Deadline: ts(-48 * time.Hour),
		})
	}
	return h
}

func newMonitor() *Monitor {
	return New(eventlog.New(), domain.NewEventDispatcher(), nil)
}

func TestUpdate_ReplacesSnapshotWholesale(t *testing.T) {
	m := newMonitor()

	s := m.Update(overdueHierarchy(1), now)
	if s.LastUpdated != now {
		t.Errorf("LastUpdated = %v; want %v", s.LastUpdated, now)
	}
	if s.OverdueTasksCount != 1 {
		t.Errorf("OverdueTasksCount = %d; want 1", s.OverdueTasksCount)
	}

	later := now.Add(time.Minute)
	s2 := m.Update(&domain.Hierarchy{}, later)
	if s2.OverdueTasksCount != 0 {
		t.Errorf("stale OverdueTasksCount = %d after recompute; want 0", s2.OverdueTasksCount)
	}
	if got := m.Snapshot(); got.LastUpdated != later {
		t.Errorf("stored LastUpdated = %v; want %v", got.LastUpdated, later)
	}
}

func TestUpdate_TransitionLogsExactlyOnce(t *testing.T) {
	log := eventlog.New()
	m := New(log, domain.NewEventDispatcher(), nil)

	// green -> red
	m.Update(overdueHierarchy(overdueTasksRed), now)
	entries := log.ByType("health.status_changed", 0)
	if len(entries) != 1 {
		t.Fatalf("got %d status_changed entries after transition; want 1", len(entries))
	}
	if entries[0].Metadata.Importance != eventlog.ImportanceCritical {
		t.Errorf("importance = %q; want critical for red", entries[0].Metadata.Importance)
	}

	// Re-confirming ticks must not log again.
	m.Update(overdueHierarchy(overdueTasksRed), now.Add(time.Minute))
	m.Update(overdueHierarchy(overdueTasksRed), now.Add(2*time.Minute))
	if got := len(log.ByType("health.status_changed", 0)); got != 1 {
		t.Errorf("got %d status_changed entries after re-confirming ticks; want 1", got)
	}

	// red -> green is a second transition at medium importance.
	m.Update(&domain.Hierarchy{}, now.Add(3*time.Minute))
	entries = log.ByType("health.status_changed", 0)
	if len(entries) != 2 {
		t.Fatalf("got %d status_changed entries after recovery; want 2", len(entries))
	}
	if entries[0].Metadata.Importance != eventlog.ImportanceMedium {
		t.Errorf("recovery importance = %q; want medium", entries[0].Metadata.Importance)
	}
}

func TestUpdate_ModeMovesInLockstep(t *testing.T) {
	m := newMonitor()

	if m.Mode() != ModeObserving {
		t.Fatalf("initial mode = %q; want observing", m.Mode())
	}

	m.Update(overdueHierarchy(overdueTasksYellow), now)
	if m.Mode() != ModeWatching {
		t.Errorf("mode after yellow = %q; want watching", m.Mode())
	}

	m.Update(overdueHierarchy(overdueTasksRed), now.Add(time.Minute))
	if m.Mode() != ModeAlert {
		t.Errorf("mode after red = %q; want alert", m.Mode())
	}

	m.Update(&domain.Hierarchy{}, now.Add(2*time.Minute))
	if m.Mode() != ModeObserving {
		t.Errorf("mode after green = %q; want observing", m.Mode())
	}
}

func TestSetInterventionActive_PinsMode(t *testing.T) {
	m := newMonitor()

	m.SetInterventionActive(true)
	if m.Mode() != ModeIntervention {
		t.Fatalf("mode = %q; want intervention", m.Mode())
	}

	// Status transitions underneath do not unpin the mode.
	m.Update(overdueHierarchy(overdueTasksRed), now)
	if m.Mode() != ModeIntervention {
		t.Errorf("mode during intervention = %q; want intervention", m.Mode())
	}

	m.SetInterventionActive(false)
	if m.Mode() != ModeWatching {
		t.Errorf("mode after release = %q; want watching", m.Mode())
	}
}

func TestUpdate_PublishesDomainEventOnTransition(t *testing.T) {
	dispatcher := domain.NewEventDispatcher()
	var events []domain.Event
	dispatcher.Subscribe("health.status_changed", func(e domain.Event) {
		events = append(events, e)
	})

	m := New(eventlog.New(), dispatcher, nil)
	m.Update(overdueHierarchy(overdueTasksRed), now)
	m.Update(overdueHierarchy(overdueTasksRed), now.Add(time.Minute))

	if len(events) != 1 {
		t.Fatalf("dispatcher saw %d events; want 1", len(events))
	}
	changed, ok := events[0].(domain.HealthStatusChangedEvent)
	if !ok {
		t.Fatalf("event type = %T; want HealthStatusChangedEvent", events[0])
	}
	if changed.To != string(StatusRed) {
		t.Errorf("event To = %q; want red", changed.To)
	}
}

func TestCompute_CompletionRates(t *testing.T) {
	h := &domain.Hierarchy{
		Tasks: []domain.Task{
			{ID: "done-heavy", Status: domain.StatusCompleted, Weight: 3, CompletedAt: ts(-time.Hour)},
			{ID: "due-light", Status: domain.StatusActive, Weight: 1, Deadline: ts(2 * time.Hour)},
		},
	}

	s := Compute(h, now)
	if s.TodayCompletionRate != 0.5 {
		t.Errorf("TodayCompletionRate = %v; want 0.5", s.TodayCompletionRate)
	}
	if s.WeightedCompletionRate != 0.75 {
		t.Errorf("WeightedCompletionRate = %v; want 0.75", s.WeightedCompletionRate)
	}
}

func TestCompute_EmptyWorkloadIsGreen(t *testing.T) {
	s := Compute(&domain.Hierarchy{}, now)
	if s.OverallStatus != StatusGreen {
		t.Errorf("OverallStatus = %q (%v); want green", s.OverallStatus, s.StatusReasons)
	}
	if s.TodayCompletionRate != 1.0 {
		t.Errorf("TodayCompletionRate = %v; want 1.0 for empty workload", s.TodayCompletionRate)
	}
	if s.TimeSinceLastCompletion >= 0 {
		t.Errorf("TimeSinceLastCompletion = %v; want negative sentinel", s.TimeSinceLastCompletion)
	}
}

func TestCompute_LockedQuestsNeverAtRisk(t *testing.T) {
	h := &domain.Hierarchy{
		Seasons: []domain.Season{
			{ID: "future", Status: domain.StatusActive, StartDate: now.AddDate(0, 0, 10).Format("2006-01-02")},
		},
		Quests: []domain.Quest{
			{ID: "locked-quest", SeasonID: "future", Status: domain.StatusActive, Deadline: ts(-time.Hour)},
			{ID: "risky-quest", Status: domain.StatusActive, Deadline: ts(24 * time.Hour)},
		},
	}

	s := Compute(h, now)
	if s.OverdueQuestsCount != 0 {
		t.Errorf("OverdueQuestsCount = %d; want 0 (locked quest excluded)", s.OverdueQuestsCount)
	}
	if len(s.AtRiskQuests) != 1 || s.AtRiskQuests[0] != "risky-quest" {
		t.Errorf("AtRiskQuests = %v; want [risky-quest]", s.AtRiskQuests)
	}
}

func TestCompute_InconsistentDeadlines(t *testing.T) {
	h := &domain.Hierarchy{
		Seasons: []domain.Season{
			{
				ID:        "s1",
				Status:    domain.StatusActive,
				StartDate: now.AddDate(0, 0, -10).Format("2006-01-02"),
				Chapters: []domain.Chapter{
					{ID: "ch1", SeasonID: "s1", Status: domain.StatusActive, Deadline: ts(24 * time.Hour)},
				},
			},
		},
		Quests: []domain.Quest{
			{ID: "q1", SeasonID: "s1", LinkedChapterID: "ch1", Status: domain.StatusActive, Deadline: ts(72 * time.Hour)},
		},
	}

	s := Compute(h, now)
	if s.InconsistentDeadlinesCount != 1 {
		t.Errorf("InconsistentDeadlinesCount = %d; want 1", s.InconsistentDeadlinesCount)
	}
}

func TestCompute_WeeklyTrend(t *testing.T) {
	tests := []struct {
		name  string
		tasks []domain.Task
		want  string
	}{
		{
			name: "improving",
			tasks: []domain.Task{
				{Status: domain.StatusCompleted, CompletedAt: ts(-24 * time.Hour)},
				{Status: domain.StatusCompleted, CompletedAt: ts(-36 * time.Hour)},
				{Status: domain.StatusCompleted, CompletedAt: ts(-5 * 24 * time.Hour)},
			},
			want: "improving",
		},
		{
			name: "declining",
			tasks: []domain.Task{
				{Status: domain.StatusCompleted, CompletedAt: ts(-5 * 24 * time.Hour)},
				{Status: domain.StatusCompleted, CompletedAt: ts(-6 * 24 * time.Hour)},
				{Status: domain.StatusCompleted, CompletedAt: ts(-24 * time.Hour)},
			},
			want: "declining",
		},
		{
			name:  "no completions is stable",
			tasks: nil,
			want:  "stable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(&domain.Hierarchy{Tasks: tt.tasks}, now)
			if s.WeeklyTrend != tt.want {
				t.Errorf("WeeklyTrend = %q; want %q", s.WeeklyTrend, tt.want)
			}
		})
	}
}

func TestCompute_EnergyPattern(t *testing.T) {
	morning := time.Date(2026, 3, 14, 8, 0, 0, 0, time.Local).Format(time.RFC3339)
	evening := time.Date(2026, 3, 14, 21, 0, 0, 0, time.Local).Format(time.RFC3339)

	h := &domain.Hierarchy{
		Tasks: []domain.Task{
			{Status: domain.StatusCompleted, CompletedAt: morning},
			{Status: domain.StatusCompleted, CompletedAt: morning},
			{Status: domain.StatusCompleted, CompletedAt: evening},
		},
	}

	s := Compute(h, now)
	if s.EnergyPattern != "morning" {
		t.Errorf("EnergyPattern = %q; want %q", s.EnergyPattern, "morning")
	}
}

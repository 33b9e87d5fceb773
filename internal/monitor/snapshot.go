// Package monitor maintains the rolling health snapshot and the monitoring
// mode the planner runs in.
package monitor

import (
	"fmt"
	"time"

	"questpulse/internal/domain"
)

// TrafficStatus is the overall traffic-light health rating.
type TrafficStatus string

const (
	StatusGreen  TrafficStatus = "green"
	StatusYellow TrafficStatus = "yellow"
	StatusRed    TrafficStatus = "red"
)

// Snapshot is the single denormalized "how is the user doing right now"
// record. It is replaced wholesale on every recompute; no history is kept.
type Snapshot struct {
	// TimeSinceLastCompletion is negative when no completion is recorded.
	TimeSinceLastCompletion    time.Duration `json:"time_since_last_completion"`
	TodayCompletionRate        float64       `json:"today_completion_rate"`
	WeightedCompletionRate     float64       `json:"weighted_completion_rate"`
	OverdueTasksCount          int           `json:"overdue_tasks_count"`
	OverdueQuestsCount         int           `json:"overdue_quests_count"`
	OverdueChaptersCount       int           `json:"overdue_chapters_count"`
	InconsistentDeadlinesCount int           `json:"inconsistent_deadlines_count"`
	AtRiskQuests               []string      `json:"at_risk_quests,omitempty"`
	WeeklyTrend                string        `json:"weekly_trend"`
	EnergyPattern              string        `json:"energy_pattern"`
	OverallStatus              TrafficStatus `json:"overall_status"`
	StatusReasons              []string      `json:"status_reasons,omitempty"`
	LastUpdated                time.Time     `json:"last_updated"`
}

// Status thresholds. Tuned against the default trigger set; a red rating
// should be rare enough that the coach persona stays meaningful.
const (
	overdueTasksYellow  = 2
	overdueTasksRed     = 5
	overdueQuestsYellow = 2
	overdueQuestsRed    = 4
	droughtYellow       = 72 * time.Hour
	droughtRed          = 7 * 24 * time.Hour
	lowCompletionRate   = 0.3
	atRiskWindow        = 48 * time.Hour
)

// Compute derives a fresh snapshot from a point-in-time hierarchy view. Lock
// state comes from the status resolver so a locked quest never counts as
// overdue or at risk.
func Compute(h *domain.Hierarchy, now time.Time) Snapshot {
	s := Snapshot{
		TimeSinceLastCompletion: -1,
		WeeklyTrend:             "stable",
		EnergyPattern:           "unknown",
		LastUpdated:             now,
	}

	s.TimeSinceLastCompletion = timeSinceLastCompletion(h.Tasks, now)
	s.TodayCompletionRate, s.WeightedCompletionRate = completionRates(h.Tasks, now)
	s.OverdueTasksCount = countOverdueTasks(h.Tasks, now)
	s.OverdueQuestsCount, s.AtRiskQuests = questFigures(h, now)
	s.OverdueChaptersCount = countOverdueChapters(h, now)
	s.InconsistentDeadlinesCount = countInconsistentDeadlines(h)
	s.WeeklyTrend = weeklyTrend(h.Tasks, now)
	s.EnergyPattern = energyPattern(h.Tasks)
	s.OverallStatus, s.StatusReasons = rate(s)

	return s
}

func timeSinceLastCompletion(tasks []domain.Task, now time.Time) time.Duration {
	var latest time.Time
	for _, t := range tasks {
		if done, ok := domain.ParseDate(t.CompletedAt); ok && done.After(latest) {
			latest = done
		}
	}
	if latest.IsZero() {
		return -1
	}
	return now.Sub(latest)
}

// completionRates looks at today's workload: tasks due today plus tasks
// completed today. An empty workload rates as 1.0, not 0, so a quiet day
// never drags the status down.
func completionRates(tasks []domain.Task, now time.Time) (plain, weighted float64) {
	today := domain.StartOfDay(now)

	var done, total, doneWeight, totalWeight int
	for _, t := range tasks {
		if t.Status == domain.StatusArchived {
			continue
		}
		w := t.Weight
		if w <= 0 {
			w = 1
		}

		completedToday := false
		if doneAt, ok := domain.ParseDate(t.CompletedAt); ok {
			completedToday = domain.StartOfDay(doneAt).Equal(today)
		}
		dueToday := false
		if due, ok := domain.ParseDate(t.Deadline); ok {
			dueToday = domain.StartOfDay(due).Equal(today)
		}

		if !completedToday && !dueToday {
			continue
		}
		total++
		totalWeight += w
		if t.Status == domain.StatusCompleted && completedToday {
			done++
			doneWeight += w
		}
	}

	if total == 0 {
		return 1.0, 1.0
	}
	return float64(done) / float64(total), float64(doneWeight) / float64(totalWeight)
}

func countOverdueTasks(tasks []domain.Task, now time.Time) int {
	var n int
	for _, t := range tasks {
		if t.Status.IsTerminal() {
			continue
		}
		if due, ok := domain.ParseDate(t.Deadline); ok && due.Before(now) {
			n++
		}
	}
	return n
}

func questFigures(h *domain.Hierarchy, now time.Time) (overdue int, atRisk []string) {
	for i := range h.Quests {
		q := &h.Quests[i]
		status := domain.QuestStatus(h, q, now)
		if status != domain.EffectiveActive && status != domain.EffectivePaused {
			continue
		}

		due, hasDue := domain.ParseDate(q.Deadline)
		if hasDue && due.Before(now) {
			overdue++
			atRisk = append(atRisk, q.ID)
			continue
		}
		if hasDue && due.Sub(now) <= atRiskWindow {
			atRisk = append(atRisk, q.ID)
			continue
		}
		if q.LinkedChapterID != "" {
			if ch, _, ok := h.ChapterByID(q.LinkedChapterID); ok {
				if domain.ChapterStatus(h, ch, now) == domain.EffectiveOverdue {
					atRisk = append(atRisk, q.ID)
				}
			}
		}
	}
	return overdue, atRisk
}

func countOverdueChapters(h *domain.Hierarchy, now time.Time) int {
	var n int
	for i := range h.Seasons {
		for j := range h.Seasons[i].Chapters {
			if domain.ChapterStatus(h, &h.Seasons[i].Chapters[j], now) == domain.EffectiveOverdue {
				n++
			}
		}
	}
	return n
}

// countInconsistentDeadlines finds quests that are due after the chapter
// they are linked to, which makes the quest impossible to finish in time.
func countInconsistentDeadlines(h *domain.Hierarchy) int {
	var n int
	for i := range h.Quests {
		q := &h.Quests[i]
		if q.LinkedChapterID == "" {
			continue
		}
		questDue, ok := domain.ParseDate(q.Deadline)
		if !ok {
			continue
		}
		ch, _, found := h.ChapterByID(q.LinkedChapterID)
		if !found {
			continue
		}
		if chapterDue, ok := domain.ParseDate(ch.Deadline); ok && questDue.After(chapterDue) {
			n++
		}
	}
	return n
}

func weeklyTrend(tasks []domain.Task, now time.Time) string {
	half := 7 * 24 * time.Hour / 2
	var recent, prior int
	for _, t := range tasks {
		done, ok := domain.ParseDate(t.CompletedAt)
		if !ok {
			continue
		}
		age := now.Sub(done)
		switch {
		case age < 0 || age > 2*half:
			continue
		case age <= half:
			recent++
		default:
			prior++
		}
	}
	switch {
	case recent > prior:
		return "improving"
	case recent < prior:
		return "declining"
	default:
		return "stable"
	}
}

func energyPattern(tasks []domain.Task) string {
	var morning, afternoon, evening int
	for _, t := range tasks {
		done, ok := domain.ParseDate(t.CompletedAt)
		if !ok {
			continue
		}
		switch hour := done.Hour(); {
		case hour < 12:
			morning++
		case hour < 18:
			afternoon++
		default:
			evening++
		}
	}
	switch {
	case morning == 0 && afternoon == 0 && evening == 0:
		return "unknown"
	case morning >= afternoon && morning >= evening:
		return "morning"
	case afternoon >= evening:
		return "afternoon"
	default:
		return "evening"
	}
}

func rate(s Snapshot) (TrafficStatus, []string) {
	var reasons []string
	status := StatusGreen

	raise := func(to TrafficStatus, reason string) {
		reasons = append(reasons, reason)
		if to == StatusRed || (to == StatusYellow && status == StatusGreen) {
			status = to
		}
	}

	switch {
	case s.OverdueTasksCount >= overdueTasksRed:
		raise(StatusRed, fmt.Sprintf("%d tasks overdue", s.OverdueTasksCount))
	case s.OverdueTasksCount >= overdueTasksYellow:
		raise(StatusYellow, fmt.Sprintf("%d tasks overdue", s.OverdueTasksCount))
	}

	switch {
	case s.OverdueQuestsCount >= overdueQuestsRed:
		raise(StatusRed, fmt.Sprintf("%d quests overdue", s.OverdueQuestsCount))
	case s.OverdueQuestsCount >= overdueQuestsYellow:
		raise(StatusYellow, fmt.Sprintf("%d quests overdue", s.OverdueQuestsCount))
	}

	if s.TimeSinceLastCompletion >= 0 {
		switch {
		case s.TimeSinceLastCompletion >= droughtRed:
			raise(StatusRed, "no completions for over a week")
		case s.TimeSinceLastCompletion >= droughtYellow:
			raise(StatusYellow, "no completions for over three days")
		}
	}

	if s.TodayCompletionRate < lowCompletionRate {
		raise(StatusYellow, "low completion rate today")
	}

	if s.InconsistentDeadlinesCount > 0 {
		raise(StatusYellow, fmt.Sprintf("%d quests due after their chapter", s.InconsistentDeadlinesCount))
	}

	return status, reasons
}

package domain

import "time"

// ExplicitStatus is the stored status of a hierarchy entity. It is the source
// of truth for terminal states; date logic never overrides completed/archived.
type ExplicitStatus string

const (
	StatusActive    ExplicitStatus = "active"
	StatusPaused    ExplicitStatus = "paused"
	StatusCompleted ExplicitStatus = "completed"
	StatusArchived  ExplicitStatus = "archived"
)

// IsTerminal reports whether the status is sticky (never recomputed away).
func (s ExplicitStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusArchived
}

// EffectiveStatus is what the rest of the system treats an entity as having
// once date rules and ancestor locking are applied.
type EffectiveStatus string

const (
	EffectiveActive        EffectiveStatus = "active"
	EffectivePaused        EffectiveStatus = "paused"
	EffectiveLocked        EffectiveStatus = "locked"
	EffectiveOverdue       EffectiveStatus = "overdue"
	EffectiveCompleted     EffectiveStatus = "completed"
	EffectiveCompletedLate EffectiveStatus = "completed_late"
	EffectiveArchived      EffectiveStatus = "archived"
)

// IsTerminal reports whether an effective status is a completed variant that
// ancestor locking must not override.
func (s EffectiveStatus) IsTerminal() bool {
	return s == EffectiveCompleted || s == EffectiveCompletedLate || s == EffectiveArchived
}

// Season is the top of the hierarchy. Date fields are kept as the raw strings
// the CRUD collaborator stores; parsing is lenient (a malformed date never
// locks anything).
type Season struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    ExplicitStatus `json:"status"`
	StartDate string         `json:"start_date,omitempty"` // YYYY-MM-DD or RFC3339
	Chapters  []Chapter      `json:"chapters,omitempty"`
}

// Chapter belongs to a season and may gate quests linked to it.
type Chapter struct {
	ID          string         `json:"id"`
	SeasonID    string         `json:"season_id"`
	Name        string         `json:"name"`
	Status      ExplicitStatus `json:"status"`
	UnlockTime  string         `json:"unlock_time,omitempty"`
	Deadline    string         `json:"deadline,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
	Progress    float64        `json:"progress"`
	Order       int            `json:"order"`
}

// Quest is the unit the user works on. A quest may be linked to a chapter in
// a different season than its own SeasonID; lookups must not assume the two
// agree.
type Quest struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Status          ExplicitStatus `json:"status"`
	UnlockTime      string         `json:"unlock_time,omitempty"`
	Deadline        string         `json:"deadline,omitempty"`
	CompletedAt     string         `json:"completed_at,omitempty"`
	LinkedChapterID string         `json:"linked_chapter_id,omitempty"`
	SeasonID        string         `json:"season_id,omitempty"`
}

// Task is the leaf entity. Tasks feed completion-rate and overdue figures in
// the health snapshot.
type Task struct {
	ID          string         `json:"id"`
	QuestID     string         `json:"quest_id,omitempty"`
	Title       string         `json:"title"`
	Status      ExplicitStatus `json:"status"`
	Weight      int            `json:"weight"` // 1..3, used for weighted completion rate
	Deadline    string         `json:"deadline,omitempty"`
	CreatedAt   string         `json:"created_at,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
}

// Hierarchy is a point-in-time, read-only view of the CRUD collaborator's
// data. The resolver and the monitor only ever read it.
type Hierarchy struct {
	Seasons []Season `json:"seasons"`
	Quests  []Quest  `json:"quests"`
	Tasks   []Task   `json:"tasks"`
}

// SeasonByID returns the season with the given id.
func (h *Hierarchy) SeasonByID(id string) (*Season, bool) {
	for i := range h.Seasons {
		if h.Seasons[i].ID == id {
			return &h.Seasons[i], true
		}
	}
	return nil, false
}

// ChapterByID searches every season for the chapter. It returns the owning
// season as well, which may differ from any season the caller expected.
func (h *Hierarchy) ChapterByID(id string) (*Chapter, *Season, bool) {
	for i := range h.Seasons {
		for j := range h.Seasons[i].Chapters {
			if h.Seasons[i].Chapters[j].ID == id {
				return &h.Seasons[i].Chapters[j], &h.Seasons[i], true
			}
		}
	}
	return nil, nil, false
}

// QuestByID returns the quest with the given id.
func (h *Hierarchy) QuestByID(id string) (*Quest, bool) {
	for i := range h.Quests {
		if h.Quests[i].ID == id {
			return &h.Quests[i], true
		}
	}
	return nil, false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses a stored date string leniently. The second return value is
// false for empty or malformed input, which callers must treat as "no date"
// rather than an error.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StartOfDay truncates a time to midnight in its location. Season locking
// compares calendar days, not instants.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Package trigger holds the configurable rule set that decides at what level,
// with what message, and how often the planner may intervene.
package trigger

import "time"

// ResponseLevel is the conversational weight of a fired trigger.
type ResponseLevel string

const (
	LevelPopup  ResponseLevel = "popup"  // lightweight notice, no conversation
	LevelFriend ResponseLevel = "friend" // supportive persona
	LevelCoach  ResponseLevel = "coach"  // directive persona
)

// Trigger is one long-lived rule. Only LastTriggered mutates, stamped when an
// intervention it spawned resolves or is dismissed.
type Trigger struct {
	ID            string        `json:"id" yaml:"id"`
	ResponseLevel ResponseLevel `json:"response_level" yaml:"response_level"`
	Message       string        `json:"message" yaml:"message"`
	Cooldown      time.Duration `json:"cooldown" yaml:"cooldown"`
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	LastTriggered *time.Time    `json:"last_triggered,omitempty" yaml:"-"`
}

// Defaults returns the shipped trigger set. User overrides are merged on top
// at load time; ids must stay stable across releases.
func Defaults() []Trigger {
	return []Trigger{
		{
			ID:            "overdue_pileup",
			ResponseLevel: LevelFriend,
			Message:       "I noticed a few deadlines slipped past. Want to look at them together?",
			Cooldown:      4 * time.Hour,
			Enabled:       true,
		},
		{
			ID:            "completion_drought",
			ResponseLevel: LevelFriend,
			Message:       "It's been a while since you finished something. Even a small task counts.",
			Cooldown:      8 * time.Hour,
			Enabled:       true,
		},
		{
			ID:            "postpone_streak",
			ResponseLevel: LevelCoach,
			Message:       "This deadline has moved three times now. Let's figure out what's really blocking it.",
			Cooldown:      12 * time.Hour,
			Enabled:       true,
		},
		{
			ID:            "health_red",
			ResponseLevel: LevelCoach,
			Message:       "Things look rough across the board. Time for a reset plan.",
			Cooldown:      6 * time.Hour,
			Enabled:       true,
		},
		{
			ID:            "deadline_tomorrow",
			ResponseLevel: LevelPopup,
			Message:       "A quest deadline lands tomorrow.",
			Cooldown:      20 * time.Hour,
			Enabled:       true,
		},
	}
}

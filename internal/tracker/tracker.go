// Package tracker holds the per-task auxiliary maps: deadline postpone
// counters and transient MoSCoW priority suggestions.
package tracker

import (
	"sync"
	"time"
)

// Suggestion is one AI-proposed MoSCoW priority for a task.
type Suggestion struct {
	TaskID          string    `json:"task_id"`
	Priority        string    `json:"priority"` // must, should, could, wont
	Rationale       string    `json:"rationale,omitempty"`
	SuggestedAt     time.Time `json:"suggested_at"`
	ConfirmedByUser bool      `json:"confirmed_by_user"`
}

// Tracker is a pair of keyed mutable maps with explicit clear/dismiss
// operations. Nothing expires on its own; callers clear explicitly.
type Tracker struct {
	mu          sync.RWMutex
	postpones   map[string]int
	suggestions map[string]Suggestion
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		postpones:   make(map[string]int),
		suggestions: make(map[string]Suggestion),
	}
}

// RecordPostpone increments the task's postpone count and returns the new
// value; the first call returns 1.
func (t *Tracker) RecordPostpone(taskID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.postpones[taskID]++
	return t.postpones[taskID]
}

// PostponeCount returns the current count and whether the task has ever been
// postponed. Key absence distinguishes "never postponed" from a zero count.
func (t *Tracker) PostponeCount(taskID string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.postpones[taskID]
	return n, ok
}

// ClearPostpone deletes the key entirely rather than resetting it to 0.
func (t *Tracker) ClearPostpone(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.postpones, taskID)
}

// PutSuggestion upserts a suggestion for the task, stamping SuggestedAt.
func (t *Tracker) PutSuggestion(taskID, priority, rationale string) Suggestion {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Suggestion{
		TaskID:      taskID,
		Priority:    priority,
		Rationale:   rationale,
		SuggestedAt: time.Now(),
	}
	t.suggestions[taskID] = s
	return s
}

// Suggestion returns the suggestion for a task, if any.
func (t *Tracker) Suggestion(taskID string) (Suggestion, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.suggestions[taskID]
	return s, ok
}

// ConfirmSuggestion flags the suggestion as accepted in place. Unknown task
// ids are ignored.
func (t *Tracker) ConfirmSuggestion(taskID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.suggestions[taskID]
	if !ok {
		return false
	}
	s.ConfirmedByUser = true
	t.suggestions[taskID] = s
	return true
}

// DismissSuggestion deletes the suggestion for a task.
func (t *Tracker) DismissSuggestion(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.suggestions, taskID)
}

// State is the serializable form of the tracker.
type State struct {
	Postpones   map[string]int        `json:"postpones,omitempty"`
	Suggestions map[string]Suggestion `json:"suggestions,omitempty"`
}

// Export copies the tracker contents for persistence.
func (t *Tracker) Export() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state := State{
		Postpones:   make(map[string]int, len(t.postpones)),
		Suggestions: make(map[string]Suggestion, len(t.suggestions)),
	}
	for k, v := range t.postpones {
		state.Postpones[k] = v
	}
	for k, v := range t.suggestions {
		state.Suggestions[k] = v
	}
	return state
}

// Restore replaces the tracker contents wholesale.
func (t *Tracker) Restore(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.postpones = make(map[string]int, len(state.Postpones))
	for k, v := range state.Postpones {
		t.postpones[k] = v
	}
	t.suggestions = make(map[string]Suggestion, len(state.Suggestions))
	for k, v := range state.Suggestions {
		t.suggestions[k] = v
	}
}

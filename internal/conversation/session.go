package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Mode is the persona currently fronting the conversation.
type Mode string

const (
	ModeFriend Mode = "friend"
	ModeCoach  Mode = "coach"
)

// Session is the single current conversation. Opening replaces it wholesale;
// closing resets it to the zero value. The ID changes on every open, which is
// what the in-flight response guard compares against.
type Session struct {
	ID       uuid.UUID      `json:"id"`
	IsOpen   bool           `json:"is_open"`
	Mode     Mode           `json:"mode,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
	Messages []Message      `json:"messages,omitempty"`
	OpenedAt time.Time      `json:"opened_at"`
}

// newSession creates a fresh open session with an empty message list.
func newSession(mode Mode, context map[string]any) Session {
	return Session{
		ID:       uuid.New(),
		IsOpen:   true,
		Mode:     mode,
		Context:  context,
		OpenedAt: time.Now(),
	}
}

// Package conversation manages the two-persona dialogue session tied to an
// intervention or opened ad hoc.
package conversation

import (
	"time"

	"github.com/google/uuid"

	"questpulse/internal/assistant"
)

// Role identifies who a message is from.
type Role string

const (
	RoleUser   Role = "user"
	RoleFriend Role = "friend"
	RoleCoach  Role = "coach"
	RoleSystem Role = "system"
)

// ConfirmedAction marks that the user accepted one of a message's suggested
// actions.
type ConfirmedAction struct {
	ActionID    string         `json:"action_id"`
	Params      map[string]any `json:"params,omitempty"`
	ConfirmedAt time.Time      `json:"confirmed_at"`
}

// Message is one entry in a session. Construct messages through the
// constructors below: only assistant messages carry suggested actions, and
// only messages that carried suggestions can be confirmed, so impossible
// combinations never get built.
type Message struct {
	ID               uuid.UUID          `json:"id"`
	Role             Role               `json:"role"`
	Content          string             `json:"content"`
	Timestamp        time.Time          `json:"timestamp"`
	SuggestedActions []assistant.Action `json:"suggested_actions,omitempty"`
	Confirmed        *ConfirmedAction   `json:"confirmed_action,omitempty"`
}

// NewUserMessage creates a message from the user.
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.New(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates a message from the active persona.
func NewAssistantMessage(mode Mode, content string, actions []assistant.Action) Message {
	role := RoleFriend
	if mode == ModeCoach {
		role = RoleCoach
	}
	return Message{
		ID:               uuid.New(),
		Role:             role,
		Content:          content,
		Timestamp:        time.Now(),
		SuggestedActions: actions,
	}
}

// NewSystemMessage creates an informational message not attributed to either
// persona.
func NewSystemMessage(content string) Message {
	return Message{
		ID:        uuid.New(),
		Role:      RoleSystem,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// IsAssistant reports whether the message came from a persona.
func (m Message) IsAssistant() bool {
	return m.Role == RoleFriend || m.Role == RoleCoach
}

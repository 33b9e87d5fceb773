package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"questpulse/internal/assistant"
	"questpulse/internal/domain"
	"questpulse/internal/eventlog"
	"questpulse/internal/monitor"
)

// ErrSuperseded is returned when an assistant response arrives for a session
// that has been closed or replaced since the request went out. The response
// is discarded, never appended to the wrong session.
var ErrSuperseded = errors.New("assistant response superseded by a newer session")

// Manager owns the single conversation session. There is exactly one writer;
// asynchronous assistant calls re-check the session id before appending.
type Manager struct {
	mu      sync.RWMutex
	session Session

	registry   *assistant.Registry
	log        *eventlog.Log
	dispatcher *domain.EventDispatcher
	logger     *slog.Logger
}

// NewManager creates a manager with a closed session.
func NewManager(registry *assistant.Registry, log *eventlog.Log, dispatcher *domain.EventDispatcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:   registry,
		log:        log,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Open replaces the session wholesale. Even when a session is already open
// the message list starts empty; no merging ever happens.
func (m *Manager) Open(mode Mode, context map[string]any) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = newSession(mode, context)
	m.logger.Info("conversation opened", "session_id", m.session.ID, "mode", mode)
	return m.session
}

// Close resets the session to the closed default. A conversation that was
// opened and closed with zero messages produces no log noise.
func (m *Manager) Close() {
	m.mu.Lock()
	session := m.session
	m.session = Session{}
	m.mu.Unlock()

	if !session.IsOpen || len(session.Messages) == 0 {
		return
	}

	m.log.Append("conversation.ended",
		eventlog.EntityRef{Kind: "conversation", ID: session.ID.String()},
		map[string]any{
			"mode":          string(session.Mode),
			"message_count": len(session.Messages),
		},
		eventlog.Metadata{Source: "conversation"},
	)
	m.dispatcher.Publish(domain.NewConversationEndedEvent(session.ID, string(session.Mode), len(session.Messages)))
}

// Session returns a copy of the current session.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session := m.session
	session.Messages = append([]Message(nil), m.session.Messages...)
	return session
}

// SetMode forces the conversation's display persona. Escalation uses this
// even when no intervention backs the conversation.
func (m *Manager) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.IsOpen {
		m.session.Mode = mode
	}
}

// AddMessage appends a message and logs a derived event classifying it.
func (m *Manager) AddMessage(msg Message) (Message, error) {
	m.mu.Lock()
	if !m.session.IsOpen {
		m.mu.Unlock()
		return Message{}, domain.ErrConversationClosed
	}
	m.session.Messages = append(m.session.Messages, msg)
	sessionID := m.session.ID
	m.mu.Unlock()

	eventType := "conversation.ai_response"
	if msg.Role == RoleUser {
		eventType = "conversation.user_message"
	}
	m.log.Append(eventType,
		eventlog.EntityRef{Kind: "conversation", ID: sessionID.String()},
		map[string]any{
			"message_id":            msg.ID.String(),
			"role":                  string(msg.Role),
			"has_suggested_actions": len(msg.SuggestedActions) > 0,
		},
		eventlog.Metadata{Source: "conversation"},
	)
	return msg, nil
}

// ConfirmAction attaches a confirmation marker to the referenced message, by
// id rather than index since message lists can be filtered elsewhere. An
// unknown message or action id is a silent no-op.
func (m *Manager) ConfirmAction(messageID uuid.UUID, actionID string, params map[string]any) bool {
	m.mu.Lock()
	var confirmed bool
	for i := range m.session.Messages {
		msg := &m.session.Messages[i]
		if msg.ID != messageID {
			continue
		}
		for _, action := range msg.SuggestedActions {
			if action.ID == actionID {
				msg.Confirmed = &ConfirmedAction{
					ActionID:    actionID,
					Params:      params,
					ConfirmedAt: time.Now(),
				}
				confirmed = true
			}
		}
		break
	}
	sessionID := m.session.ID
	m.mu.Unlock()

	if confirmed {
		m.log.Append("conversation.action_confirmed",
			eventlog.EntityRef{Kind: "conversation", ID: sessionID.String()},
			map[string]any{
				"message_id": messageID.String(),
				"action_id":  actionID,
			},
			eventlog.Metadata{Source: "conversation", Importance: eventlog.ImportanceMedium},
		)
	}
	return confirmed
}

// RequestInitialResponse asks the assistant to open the conversation for a
// fired trigger and appends the reply, unless the session moved on meanwhile.
func (m *Manager) RequestInitialResponse(ctx context.Context, triggerType string, snapshot monitor.Snapshot, extra map[string]any) (*assistant.Response, error) {
	sessionID, mode, ok := m.snapshotSession()
	if !ok {
		return nil, domain.ErrConversationClosed
	}

	provider, err := m.registry.Default()
	if err != nil {
		return nil, err
	}

	resp, err := provider.InitialResponse(ctx, personaFor(mode), triggerType, snapshot, extra)
	if err != nil {
		return nil, err
	}
	return resp, m.appendGuarded(sessionID, resp)
}

// RespondToUser appends the user's message, asks the assistant for a reply,
// and appends it under the same guard.
func (m *Manager) RespondToUser(ctx context.Context, userText string, snapshot monitor.Snapshot) (*assistant.Response, error) {
	if _, err := m.AddMessage(NewUserMessage(userText)); err != nil {
		return nil, err
	}

	sessionID, mode, _ := m.snapshotSession()
	history := m.history()

	provider, err := m.registry.Default()
	if err != nil {
		return nil, err
	}

	resp, err := provider.RespondToUser(ctx, personaFor(mode), userText, history, snapshot)
	if err != nil {
		return nil, err
	}
	return resp, m.appendGuarded(sessionID, resp)
}

// appendGuarded appends an assistant response only if the session it was
// requested for is still the open one.
func (m *Manager) appendGuarded(requestedFor uuid.UUID, resp *assistant.Response) error {
	m.mu.Lock()
	if !m.session.IsOpen || m.session.ID != requestedFor {
		m.mu.Unlock()
		m.logger.Debug("discarding superseded assistant response", "requested_for", requestedFor)
		return ErrSuperseded
	}
	msg := NewAssistantMessage(m.session.Mode, resp.Message, resp.SuggestedActions)
	m.session.Messages = append(m.session.Messages, msg)
	m.mu.Unlock()

	m.log.Append("conversation.ai_response",
		eventlog.EntityRef{Kind: "conversation", ID: requestedFor.String()},
		map[string]any{
			"message_id":            msg.ID.String(),
			"role":                  string(msg.Role),
			"has_suggested_actions": len(msg.SuggestedActions) > 0,
		},
		eventlog.Metadata{Source: "conversation"},
	)
	return nil
}

func (m *Manager) snapshotSession() (uuid.UUID, Mode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.ID, m.session.Mode, m.session.IsOpen
}

func (m *Manager) history() []assistant.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := make([]assistant.Turn, 0, len(m.session.Messages))
	for _, msg := range m.session.Messages {
		turns = append(turns, assistant.Turn{Role: string(msg.Role), Content: msg.Content})
	}
	return turns
}

// Restore replaces the session wholesale from persisted state.
func (m *Manager) Restore(session Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
}

func personaFor(mode Mode) assistant.Persona {
	if mode == ModeCoach {
		return assistant.PersonaCoach
	}
	return assistant.PersonaFriend
}

package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"questpulse/internal/assistant"
	"questpulse/internal/domain"
	"questpulse/internal/eventlog"
	"questpulse/internal/monitor"
)

// stubProvider lets a test run code while a request is "in flight".
type stubProvider struct {
	response *assistant.Response
	err      error
	inFlight func()
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) InitialResponse(_ context.Context, _ assistant.Persona, _ string, _ monitor.Snapshot, _ map[string]any) (*assistant.Response, error) {
	if s.inFlight != nil {
		s.inFlight()
	}
	return s.response, s.err
}

func (s *stubProvider) RespondToUser(_ context.Context, _ assistant.Persona, _ string, _ []assistant.Turn, _ monitor.Snapshot) (*assistant.Response, error) {
	if s.inFlight != nil {
		s.inFlight()
	}
	return s.response, s.err
}

func newTestManager(p assistant.Provider) (*Manager, *eventlog.Log) {
	registry := assistant.NewRegistry()
	registry.Register(p.Name(), p)
	log := eventlog.New()
	return NewManager(registry, log, domain.NewEventDispatcher(), nil), log
}

func TestOpen_ReplacesSessionWholesale(t *testing.T) {
	m, _ := newTestManager(assistant.NewScriptedProvider())

	first := m.Open(ModeFriend, nil)
	if _, err := m.AddMessage(NewUserMessage("hello")); err != nil {
		t.Fatalf("AddMessage error: %v", err)
	}

	second := m.Open(ModeCoach, map[string]any{"trigger": "health_red"})

	if second.ID == first.ID {
		t.Error("reopening must mint a new session id")
	}
	session := m.Session()
	if len(session.Messages) != 0 {
		t.Errorf("reopened session has %d messages; want 0", len(session.Messages))
	}
	if session.Mode != ModeCoach {
		t.Errorf("Mode = %q; want coach", session.Mode)
	}
}

func TestClose_EmptySessionIsSilent(t *testing.T) {
	m, log := newTestManager(assistant.NewScriptedProvider())

	m.Open(ModeFriend, nil)
	m.Close()

	if got := len(log.ByType("conversation.ended", 0)); got != 0 {
		t.Errorf("got %d conversation.ended entries for empty session; want 0", got)
	}
	if m.Session().IsOpen {
		t.Error("session should be closed")
	}
}

func TestClose_LogsMessageCountAndMode(t *testing.T) {
	m, log := newTestManager(assistant.NewScriptedProvider())

	m.Open(ModeCoach, nil)
	m.AddMessage(NewUserMessage("one"))
	m.AddMessage(NewSystemMessage("two"))
	m.Close()

	entries := log.ByType("conversation.ended", 0)
	if len(entries) != 1 {
		t.Fatalf("got %d conversation.ended entries; want 1", len(entries))
	}
	if entries[0].Payload["message_count"] != 2 {
		t.Errorf("message_count = %v; want 2", entries[0].Payload["message_count"])
	}
	if entries[0].Payload["mode"] != "coach" {
		t.Errorf("mode = %v; want coach", entries[0].Payload["mode"])
	}
}

func TestAddMessage_ClosedSession(t *testing.T) {
	m, _ := newTestManager(assistant.NewScriptedProvider())

	if _, err := m.AddMessage(NewUserMessage("hello")); !errors.Is(err, domain.ErrConversationClosed) {
		t.Errorf("AddMessage on closed session = %v; want ErrConversationClosed", err)
	}
}

func TestAddMessage_LogsDerivedEntry(t *testing.T) {
	m, log := newTestManager(assistant.NewScriptedProvider())
	m.Open(ModeFriend, nil)

	m.AddMessage(NewUserMessage("hi"))
	m.AddMessage(NewAssistantMessage(ModeFriend, "hello", []assistant.Action{{ID: "a1", Label: "x", Kind: "focus"}}))

	if got := len(log.ByType("conversation.user_message", 0)); got != 1 {
		t.Errorf("got %d user_message entries; want 1", got)
	}
	ai := log.ByType("conversation.ai_response", 0)
	if len(ai) != 1 {
		t.Fatalf("got %d ai_response entries; want 1", len(ai))
	}
	if ai[0].Payload["has_suggested_actions"] != true {
		t.Error("ai_response entry should record attached suggested actions")
	}
}

func TestConfirmAction(t *testing.T) {
	m, log := newTestManager(assistant.NewScriptedProvider())
	m.Open(ModeFriend, nil)

	msg, _ := m.AddMessage(NewAssistantMessage(ModeFriend, "try this", []assistant.Action{
		{ID: "a1", Label: "Reschedule", Kind: "reschedule"},
	}))

	if !m.ConfirmAction(msg.ID, "a1", map[string]any{"days": 2}) {
		t.Fatal("ConfirmAction should succeed for a known message/action")
	}

	session := m.Session()
	confirmed := session.Messages[0].Confirmed
	if confirmed == nil || confirmed.ActionID != "a1" {
		t.Fatalf("Confirmed = %+v; want action a1", confirmed)
	}

	entries := log.ByType("conversation.action_confirmed", 0)
	if len(entries) != 1 {
		t.Fatalf("got %d action_confirmed entries; want 1", len(entries))
	}
	if entries[0].Metadata.Importance != eventlog.ImportanceMedium {
		t.Errorf("importance = %q; want medium", entries[0].Metadata.Importance)
	}

	// Unknown ids are silent no-ops.
	if m.ConfirmAction(uuid.New(), "a1", nil) {
		t.Error("ConfirmAction with unknown message id should be a no-op")
	}
	if m.ConfirmAction(msg.ID, "missing", nil) {
		t.Error("ConfirmAction with unknown action id should be a no-op")
	}
}

func TestRespondToUser_AppendsBothSides(t *testing.T) {
	m, _ := newTestManager(assistant.NewScriptedProvider())
	m.Open(ModeFriend, nil)

	resp, err := m.RespondToUser(context.Background(), "I feel behind", monitor.Snapshot{})
	if err != nil {
		t.Fatalf("RespondToUser error: %v", err)
	}
	if resp.Message == "" {
		t.Error("response message should not be empty")
	}

	session := m.Session()
	if len(session.Messages) != 2 {
		t.Fatalf("session has %d messages; want 2 (user + assistant)", len(session.Messages))
	}
	if session.Messages[0].Role != RoleUser || session.Messages[1].Role != RoleFriend {
		t.Errorf("roles = [%q, %q]; want [user, friend]", session.Messages[0].Role, session.Messages[1].Role)
	}
}

func TestSupersededResponseIsDiscarded(t *testing.T) {
	var m *Manager
	stub := &stubProvider{response: &assistant.Response{Message: "too late"}}
	m, _ = newTestManager(stub)

	m.Open(ModeFriend, nil)

	// While the request is in flight the session is replaced.
	stub.inFlight = func() {
		m.Open(ModeFriend, nil)
	}

	_, err := m.RequestInitialResponse(context.Background(), "overdue_pileup", monitor.Snapshot{}, nil)
	if !errors.Is(err, ErrSuperseded) {
		t.Fatalf("RequestInitialResponse = %v; want ErrSuperseded", err)
	}

	if got := len(m.Session().Messages); got != 0 {
		t.Errorf("new session has %d messages; want 0 (stale response discarded)", got)
	}
}

func TestSupersededByClose(t *testing.T) {
	var m *Manager
	stub := &stubProvider{response: &assistant.Response{Message: "too late"}}
	m, _ = newTestManager(stub)

	m.Open(ModeFriend, nil)
	stub.inFlight = func() {
		m.Close()
	}

	if _, err := m.RequestInitialResponse(context.Background(), "health_red", monitor.Snapshot{}, nil); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("RequestInitialResponse after close = %v; want ErrSuperseded", err)
	}
}

func TestSetMode_OnlyWhenOpen(t *testing.T) {
	m, _ := newTestManager(assistant.NewScriptedProvider())

	m.SetMode(ModeCoach)
	if m.Session().Mode == ModeCoach {
		t.Error("SetMode on a closed session should not take effect")
	}

	m.Open(ModeFriend, nil)
	m.SetMode(ModeCoach)
	if m.Session().Mode != ModeCoach {
		t.Error("SetMode should switch an open session to coach")
	}
}

// Package mcp exposes the engine to editor agents over the Model Context
// Protocol. Every tool is a thin adapter; all semantics live in the engine.
package mcp

import (
	"context"
	"fmt"
	"time"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/google/uuid"

	"questpulse/internal/conversation"
	"questpulse/internal/domain"
	"questpulse/internal/engine"
	"questpulse/internal/eventlog"
	"questpulse/internal/intervention"
)

// Server wraps the MCP server with questpulse functionality
type Server struct {
	mcpServer *server.Server
	engine    *engine.Engine
}

// Config contains configuration for the MCP server
type Config struct {
	Engine *engine.Engine
}

// NewServer creates a new MCP server for questpulse
func NewServer(cfg Config) *Server {
	s := &Server{
		engine: cfg.Engine,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "questpulse",
		Version: "0.1.0",
	}, server.WithInstructions(`
questpulse is a proactive planning companion. It watches quest and task
activity, scores overall health, and reaches out when things slip.

Available tools:
- questpulse_status: Current health snapshot, mode, and active intervention
- questpulse_activity: Record a task/quest activity event
- questpulse_events: List recent activity events
- questpulse_trigger: Fire an intervention trigger by id
- questpulse_respond: Acknowledge, escalate, resolve, or dismiss the active intervention
- questpulse_converse: Open an ad hoc conversation and get the companion's opener
- questpulse_chat: Send a message to the open conversation
- questpulse_postpone: Record a deadline postponement for a task

Interventions occupy a single slot; a new trigger is refused while one is
active. Resolving or dismissing starts the trigger's cooldown.
`))

	s.registerTools()

	return s
}

// registerTools registers all questpulse MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("questpulse_status").
		Description("Get the current health snapshot, monitor mode, and any active intervention.").
		Handler(s.handleStatus)

	s.mcpServer.Tool("questpulse_activity").
		Description("Record an activity event (task.completed, quest.started, ...) and refresh health.").
		Handler(s.handleActivity)

	s.mcpServer.Tool("questpulse_events").
		Description("List recent activity events, optionally filtered by type.").
		Handler(s.handleEvents)

	s.mcpServer.Tool("questpulse_trigger").
		Description("Fire an intervention trigger by id. Refused while another intervention is active.").
		Handler(s.handleTrigger)

	s.mcpServer.Tool("questpulse_respond").
		Description("Acknowledge, escalate, resolve, or dismiss the active intervention.").
		Handler(s.handleRespond)

	s.mcpServer.Tool("questpulse_converse").
		Description("Open an ad hoc conversation with the companion, without waiting for a trigger.").
		Handler(s.handleConverse)

	s.mcpServer.Tool("questpulse_chat").
		Description("Send a user message to the open conversation and get the companion's reply.").
		Handler(s.handleChat)

	s.mcpServer.Tool("questpulse_postpone").
		Description("Record a deadline postponement for a task. Repeated postpones trigger a coach intervention.").
		Handler(s.handlePostpone)
}

// Input/Output types for tools

type StatusInput struct{}

type StatusOutput struct {
	Mode               string             `json:"mode"`
	OverallStatus      string             `json:"overall_status"`
	CompletionRate     float64            `json:"completion_rate"`
	OverdueQuests      int                `json:"overdue_quests"`
	OverdueChapters    int                `json:"overdue_chapters"`
	AtRiskQuests       []string           `json:"at_risk_quests,omitempty"`
	ActiveIntervention *InterventionBrief `json:"active_intervention,omitempty"`
	ConversationIsOpen bool               `json:"conversation_is_open"`
	ConversationMode   string             `json:"conversation_mode,omitempty"`
	ConversationMsgs   int                `json:"conversation_messages"`
}

type InterventionBrief struct {
	ID        string `json:"id"`
	TriggerID string `json:"trigger_id"`
	Status    string `json:"status"`
	Level     string `json:"level"`
	StartedAt string `json:"started_at"`
}

type ActivityInput struct {
	EventType  string         `json:"event_type" jsonschema:"description=Event type such as task.completed or quest.started"`
	EntityKind string         `json:"entity_kind,omitempty" jsonschema:"description=Entity kind: task, quest, chapter, season"`
	EntityID   string         `json:"entity_id,omitempty" jsonschema:"description=Entity id"`
	EntityName string         `json:"entity_name,omitempty" jsonschema:"description=Human-readable entity name"`
	Payload    map[string]any `json:"payload,omitempty" jsonschema:"description=Free-form event payload"`
}

type ActivityOutput struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
}

type EventsInput struct {
	Type  string `json:"type,omitempty" jsonschema:"description=Filter to one event type"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum events to return (default 20)"`
}

type EventsOutput struct {
	Events []EventBrief `json:"events"`
	Total  int          `json:"total"`
}

type EventBrief struct {
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Timestamp  string `json:"timestamp"`
}

type TriggerInput struct {
	TriggerID string `json:"trigger_id" jsonschema:"description=Trigger id such as overdue_pileup or health_red"`
}

type TriggerOutput struct {
	Fired   bool   `json:"fired"`
	ID      string `json:"id,omitempty"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

type RespondInput struct {
	Action     string `json:"action" jsonschema:"description=One of: acknowledge, escalate, resolve, dismiss,enum=acknowledge,enum=escalate,enum=resolve,enum=dismiss"`
	Resolution string `json:"resolution,omitempty" jsonschema:"description=Optional resolution note when resolving"`
}

type RespondOutput struct {
	Status  string `json:"status"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

type ConverseInput struct {
	Mode string `json:"mode,omitempty" jsonschema:"description=Conversation persona: friend (default) or coach,enum=friend,enum=coach"`
}

type ConverseOutput struct {
	Opener string `json:"opener"`
	Mode   string `json:"mode"`
}

type ChatInput struct {
	Content string `json:"content" jsonschema:"description=The user's message"`
}

type ChatOutput struct {
	Reply     string `json:"reply"`
	Mode      string `json:"mode"`
	Escalated bool   `json:"escalated"`
	Closed    bool   `json:"closed"`
}

type PostponeInput struct {
	TaskID string `json:"task_id" jsonschema:"description=Task id whose deadline moved"`
}

type PostponeOutput struct {
	PostponeCount int    `json:"postpone_count"`
	Message       string `json:"message"`
}

// Tool handlers

func (s *Server) handleStatus(ctx context.Context, _ StatusInput) (StatusOutput, error) {
	snapshot := s.engine.Monitor().Snapshot()
	session := s.engine.Conversations().Session()

	out := StatusOutput{
		Mode:               string(s.engine.Monitor().Mode()),
		OverallStatus:      string(snapshot.OverallStatus),
		CompletionRate:     snapshot.WeightedCompletionRate,
		OverdueQuests:      snapshot.OverdueQuestsCount,
		OverdueChapters:    snapshot.OverdueChaptersCount,
		AtRiskQuests:       snapshot.AtRiskQuests,
		ConversationIsOpen: session.IsOpen,
		ConversationMsgs:   len(session.Messages),
	}
	if session.IsOpen {
		out.ConversationMode = string(session.Mode)
	}
	if iv, ok := s.engine.ActiveIntervention(); ok {
		out.ActiveIntervention = &InterventionBrief{
			ID:        iv.ID.String(),
			TriggerID: iv.TriggerID,
			Status:    string(iv.Status),
			Level:     string(iv.CurrentLevel),
			StartedAt: iv.StartedAt.Format(time.RFC3339),
		}
	}
	return out, nil
}

func (s *Server) handleActivity(ctx context.Context, input ActivityInput) (ActivityOutput, error) {
	if input.EventType == "" {
		return ActivityOutput{}, fmt.Errorf("event_type is required")
	}

	err := s.engine.RecordActivity(ctx, input.EventType,
		eventlog.EntityRef{Kind: input.EntityKind, ID: input.EntityID, Name: input.EntityName},
		input.Payload,
		eventlog.Metadata{Source: "mcp"},
	)
	if err != nil {
		return ActivityOutput{}, fmt.Errorf("failed to record activity: %w", err)
	}

	return ActivityOutput{
		Status: string(s.engine.Monitor().Snapshot().OverallStatus),
		Mode:   string(s.engine.Monitor().Mode()),
	}, nil
}

func (s *Server) handleEvents(ctx context.Context, input EventsInput) (EventsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	var entries []eventlog.Entry
	if input.Type != "" {
		entries = s.engine.Events().ByType(input.Type, limit)
	} else {
		entries = s.engine.Events().Recent(limit)
	}

	out := EventsOutput{Total: s.engine.Events().Len()}
	for _, e := range entries {
		out.Events = append(out.Events, EventBrief{
			Type:       e.Type,
			EntityKind: e.Entity.Kind,
			EntityID:   e.Entity.ID,
			Timestamp:  e.Timestamp.Format(time.RFC3339),
		})
	}
	return out, nil
}

func (s *Server) handleTrigger(ctx context.Context, input TriggerInput) (TriggerOutput, error) {
	if input.TriggerID == "" {
		return TriggerOutput{}, fmt.Errorf("trigger_id is required")
	}

	iv, err := s.engine.TriggerIntervention(ctx, input.TriggerID, input.TriggerID)
	if err != nil {
		if err == domain.ErrInterventionActive {
			return TriggerOutput{
				Fired:   false,
				Message: "an intervention is already active; resolve or dismiss it first",
			}, nil
		}
		return TriggerOutput{}, fmt.Errorf("failed to trigger intervention: %w", err)
	}
	if iv.ID == uuid.Nil {
		return TriggerOutput{
			Fired:   false,
			Message: "trigger is unknown, disabled, or cooling down",
		}, nil
	}

	return TriggerOutput{
		Fired:   true,
		ID:      iv.ID.String(),
		Level:   string(iv.CurrentLevel),
		Message: fmt.Sprintf("intervention fired at %s level", iv.CurrentLevel),
	}, nil
}

func (s *Server) handleRespond(ctx context.Context, input RespondInput) (RespondOutput, error) {
	var (
		iv  intervention.Intervention
		err error
	)
	switch input.Action {
	case "acknowledge":
		iv, err = s.engine.AcknowledgeIntervention()
	case "escalate":
		iv, err = s.engine.EscalateIntervention()
	case "resolve":
		iv, err = s.engine.ResolveIntervention(input.Resolution)
	case "dismiss":
		iv, err = s.engine.DismissIntervention()
	default:
		return RespondOutput{}, fmt.Errorf("unknown action %q", input.Action)
	}
	if err != nil {
		if err == domain.ErrNoActiveIntervention {
			return RespondOutput{Message: "no active intervention"}, nil
		}
		return RespondOutput{}, fmt.Errorf("failed to %s intervention: %w", input.Action, err)
	}
	if iv.ID == uuid.Nil {
		// Escalation without an active intervention still switches the
		// conversation persona.
		return RespondOutput{Message: "no active intervention; conversation switched to coach"}, nil
	}

	return RespondOutput{
		Status:  string(iv.Status),
		Level:   string(iv.CurrentLevel),
		Message: fmt.Sprintf("intervention is now %s", iv.Status),
	}, nil
}

func (s *Server) handleConverse(ctx context.Context, input ConverseInput) (ConverseOutput, error) {
	mode := conversation.ModeFriend
	switch input.Mode {
	case "", string(conversation.ModeFriend):
	case string(conversation.ModeCoach):
		mode = conversation.ModeCoach
	default:
		return ConverseOutput{}, fmt.Errorf("unknown mode %q", input.Mode)
	}

	session, resp, err := s.engine.OpenConversation(ctx, mode, map[string]any{"opened_by": "mcp"})
	if err != nil {
		return ConverseOutput{}, fmt.Errorf("failed to open conversation: %w", err)
	}

	return ConverseOutput{
		Opener: resp.Message,
		Mode:   string(session.Mode),
	}, nil
}

func (s *Server) handleChat(ctx context.Context, input ChatInput) (ChatOutput, error) {
	if input.Content == "" {
		return ChatOutput{}, fmt.Errorf("content is required")
	}

	resp, err := s.engine.Conversations().RespondToUser(ctx, input.Content,
		s.engine.Monitor().Snapshot())
	if err != nil {
		if err == domain.ErrConversationClosed {
			return ChatOutput{}, fmt.Errorf("no open conversation; fire a trigger or open one with questpulse_converse")
		}
		return ChatOutput{}, fmt.Errorf("assistant request failed: %w", err)
	}

	if resp.ShouldEscalate {
		s.engine.EscalateIntervention()
	}

	out := ChatOutput{
		Reply:     resp.Message,
		Mode:      string(s.engine.Conversations().Session().Mode),
		Escalated: resp.ShouldEscalate,
		Closed:    resp.ShouldClose,
	}
	if resp.ShouldClose {
		s.engine.Conversations().Close()
	}
	return out, nil
}

func (s *Server) handlePostpone(ctx context.Context, input PostponeInput) (PostponeOutput, error) {
	if input.TaskID == "" {
		return PostponeOutput{}, fmt.Errorf("task_id is required")
	}

	count := s.engine.RecordPostpone(ctx, input.TaskID)
	out := PostponeOutput{
		PostponeCount: count,
		Message:       fmt.Sprintf("postpone %d recorded", count),
	}
	if _, ok := s.engine.ActiveIntervention(); ok && count >= 3 {
		out.Message = fmt.Sprintf("postpone %d recorded; the coach wants a word", count)
	}
	return out, nil
}

// ServeStdio starts the MCP server on stdio (for editor integration)
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}

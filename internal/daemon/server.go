// Package daemon exposes the engine over a local HTTP API.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"questpulse/internal/config"
	"questpulse/internal/conversation"
	"questpulse/internal/domain"
	"questpulse/internal/engine"
	"questpulse/internal/eventlog"
	"questpulse/internal/storage/local"
	"questpulse/internal/storage/sqlite"
)

// Server represents the questpulse daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux

	engine    *engine.Engine
	hierarchy *sqlite.HierarchyStore
	states    *local.StateStore
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config    *config.LocalConfig
	Engine    *engine.Engine
	Hierarchy *sqlite.HierarchyStore
	States    *local.StateStore
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		cfg:       cfg.Config,
		engine:    cfg.Engine,
		hierarchy: cfg.Hierarchy,
		states:    cfg.States,
		router:    http.NewServeMux(),
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	handler := recoveryMiddleware(correlationIDMiddleware(loggingMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/config", s.handleGetConfig)
	s.router.HandleFunc("GET /v1/triggers", s.handleListTriggers)

	// Activity & events
	s.router.HandleFunc("POST /v1/activity", s.handleRecordActivity)
	s.router.HandleFunc("GET /v1/events", s.handleListEvents)

	// Hierarchy CRUD + effective status
	s.router.HandleFunc("PUT /v1/seasons/{id}", s.handleSaveSeason)
	s.router.HandleFunc("DELETE /v1/seasons/{id}", s.handleDeleteSeason)
	s.router.HandleFunc("GET /v1/seasons/{id}/status", s.handleSeasonStatus)
	s.router.HandleFunc("PUT /v1/chapters/{id}", s.handleSaveChapter)
	s.router.HandleFunc("DELETE /v1/chapters/{id}", s.handleDeleteChapter)
	s.router.HandleFunc("GET /v1/chapters/{id}/status", s.handleChapterStatus)
	s.router.HandleFunc("PUT /v1/quests/{id}", s.handleSaveQuest)
	s.router.HandleFunc("DELETE /v1/quests/{id}", s.handleDeleteQuest)
	s.router.HandleFunc("GET /v1/quests/{id}/status", s.handleQuestStatus)
	s.router.HandleFunc("PUT /v1/tasks/{id}", s.handleSaveTask)
	s.router.HandleFunc("DELETE /v1/tasks/{id}", s.handleDeleteTask)

	// Interventions
	s.router.HandleFunc("POST /v1/interventions/trigger", s.handleTriggerIntervention)
	s.router.HandleFunc("GET /v1/interventions/active", s.handleActiveIntervention)
	s.router.HandleFunc("GET /v1/interventions/history", s.handleInterventionHistory)
	s.router.HandleFunc("POST /v1/interventions/acknowledge", s.handleAcknowledge)
	s.router.HandleFunc("POST /v1/interventions/escalate", s.handleEscalate)
	s.router.HandleFunc("POST /v1/interventions/resolve", s.handleResolve)
	s.router.HandleFunc("POST /v1/interventions/dismiss", s.handleDismiss)

	// Conversation
	s.router.HandleFunc("GET /v1/conversation", s.handleGetConversation)
	s.router.HandleFunc("POST /v1/conversation", s.handleOpenConversation)
	s.router.HandleFunc("POST /v1/conversation/messages", s.handleSendMessage)
	s.router.HandleFunc("POST /v1/conversation/messages/{id}/confirm", s.handleConfirmAction)
	s.router.HandleFunc("POST /v1/conversation/close", s.handleCloseConversation)

	// Trackers
	s.router.HandleFunc("POST /v1/tasks/{id}/postpone", s.handlePostpone)
	s.router.HandleFunc("GET /v1/tasks/{id}/postpones", s.handleGetPostpones)
	s.router.HandleFunc("PUT /v1/tasks/{id}/suggestion", s.handlePutSuggestion)
	s.router.HandleFunc("POST /v1/tasks/{id}/suggestion/confirm", s.handleConfirmSuggestion)
	s.router.HandleFunc("DELETE /v1/tasks/{id}/suggestion", s.handleDismissSuggestion)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting questpulse daemon", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown persists engine state and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	if s.states != nil {
		if err := s.states.Save(s.engine.Export()); err != nil {
			slog.Warn("failed to persist engine state", "error", err)
		}
	}

	return s.server.Shutdown(ctx)
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.engine.Monitor().Snapshot()

	response := map[string]interface{}{
		"mode":     s.engine.Monitor().Mode(),
		"snapshot": snapshot,
	}
	if active, ok := s.engine.ActiveIntervention(); ok {
		response["active_intervention"] = active
	}
	s.jsonResponse(w, http.StatusOK, response)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	// Return config without secrets
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"daemon":           s.cfg.Daemon,
		"monitor":          s.cfg.Monitor,
		"default_provider": s.cfg.Assistant.DefaultProvider,
	})
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"triggers": s.engine.Triggers().All(),
	})
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventType  string         `json:"event_type"`
		EntityKind string         `json:"entity_kind"`
		EntityID   string         `json:"entity_id"`
		EntityName string         `json:"entity_name,omitempty"`
		Payload    map[string]any `json:"payload,omitempty"`
		Source     string         `json:"source,omitempty"`
		Importance string         `json:"importance,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.EventType == "" {
		s.jsonError(w, http.StatusBadRequest, "event_type is required", nil)
		return
	}

	err := s.engine.RecordActivity(r.Context(), req.EventType,
		eventlog.EntityRef{Kind: req.EntityKind, ID: req.EntityID, Name: req.EntityName},
		req.Payload,
		eventlog.Metadata{Source: req.Source, Importance: eventlog.Importance(req.Importance)},
	)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to record activity", err)
		return
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]interface{}{
		"status": s.engine.Monitor().Snapshot().OverallStatus,
		"mode":   s.engine.Monitor().Mode(),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		fmt.Sscanf(v, "%d", &n)
	}

	var entries []eventlog.Entry
	if eventType := r.URL.Query().Get("type"); eventType != "" {
		entries = s.engine.Events().ByType(eventType, n)
	} else {
		entries = s.engine.Events().Recent(n)
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"events": entries,
		"total":  s.engine.Events().Len(),
	})
}

// Hierarchy handlers

func (s *Server) handleSaveSeason(w http.ResponseWriter, r *http.Request) {
	var season domain.Season
	if err := json.NewDecoder(r.Body).Decode(&season); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	season.ID = r.PathValue("id")

	if err := s.hierarchy.SaveSeason(&season); err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to save season", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, season)
}

func (s *Server) handleDeleteSeason(w http.ResponseWriter, r *http.Request) {
	if err := s.hierarchy.DeleteSeason(r.PathValue("id")); err != nil {
		s.hierarchyError(w, err, "failed to delete season")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSeasonStatus(w http.ResponseWriter, r *http.Request) {
	h, err := s.hierarchy.Load(r.Context())
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to load hierarchy", err)
		return
	}

	season, ok := h.SeasonByID(r.PathValue("id"))
	if !ok {
		s.jsonError(w, http.StatusNotFound, "season not found", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"id":               season.ID,
		"status":           season.Status,
		"effective_status": domain.SeasonStatus(season, time.Now()),
	})
}

func (s *Server) handleSaveChapter(w http.ResponseWriter, r *http.Request) {
	var chapter domain.Chapter
	if err := json.NewDecoder(r.Body).Decode(&chapter); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	chapter.ID = r.PathValue("id")
	if chapter.SeasonID == "" {
		s.jsonError(w, http.StatusBadRequest, "season_id is required", nil)
		return
	}

	if err := s.hierarchy.SaveChapter(&chapter); err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to save chapter", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, chapter)
}

func (s *Server) handleDeleteChapter(w http.ResponseWriter, r *http.Request) {
	if err := s.hierarchy.DeleteChapter(r.PathValue("id")); err != nil {
		s.hierarchyError(w, err, "failed to delete chapter")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChapterStatus(w http.ResponseWriter, r *http.Request) {
	h, err := s.hierarchy.Load(r.Context())
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to load hierarchy", err)
		return
	}

	chapter, _, ok := h.ChapterByID(r.PathValue("id"))
	if !ok {
		s.jsonError(w, http.StatusNotFound, "chapter not found", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"id":               chapter.ID,
		"status":           chapter.Status,
		"effective_status": domain.ChapterStatus(h, chapter, time.Now()),
	})
}

func (s *Server) handleSaveQuest(w http.ResponseWriter, r *http.Request) {
	var quest domain.Quest
	if err := json.NewDecoder(r.Body).Decode(&quest); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	quest.ID = r.PathValue("id")

	if err := s.hierarchy.SaveQuest(&quest); err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to save quest", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, quest)
}

func (s *Server) handleDeleteQuest(w http.ResponseWriter, r *http.Request) {
	if err := s.hierarchy.DeleteQuest(r.PathValue("id")); err != nil {
		s.hierarchyError(w, err, "failed to delete quest")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuestStatus(w http.ResponseWriter, r *http.Request) {
	h, err := s.hierarchy.Load(r.Context())
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to load hierarchy", err)
		return
	}

	quest, ok := h.QuestByID(r.PathValue("id"))
	if !ok {
		s.jsonError(w, http.StatusNotFound, "quest not found", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"id":               quest.ID,
		"status":           quest.Status,
		"effective_status": domain.QuestStatus(h, quest, time.Now()),
	})
}

func (s *Server) handleSaveTask(w http.ResponseWriter, r *http.Request) {
	var task domain.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	task.ID = r.PathValue("id")

	if err := s.hierarchy.SaveTask(&task); err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to save task", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.hierarchy.DeleteTask(r.PathValue("id")); err != nil {
		s.hierarchyError(w, err, "failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Intervention handlers

func (s *Server) handleTriggerIntervention(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TriggerID   string `json:"trigger_id"`
		TriggerType string `json:"trigger_type,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.TriggerID == "" {
		s.jsonError(w, http.StatusBadRequest, "trigger_id is required", nil)
		return
	}
	if req.TriggerType == "" {
		req.TriggerType = req.TriggerID
	}

	iv, err := s.engine.TriggerIntervention(r.Context(), req.TriggerID, req.TriggerType)
	if err != nil {
		if err == domain.ErrInterventionActive {
			s.jsonError(w, http.StatusConflict, "an intervention is already active", nil)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to trigger intervention", err)
		return
	}
	if iv.ID == uuid.Nil {
		s.jsonResponse(w, http.StatusOK, map[string]interface{}{"fired": false})
		return
	}
	s.jsonResponse(w, http.StatusCreated, iv)
}

func (s *Server) handleActiveIntervention(w http.ResponseWriter, r *http.Request) {
	iv, ok := s.engine.ActiveIntervention()
	if !ok {
		s.jsonError(w, http.StatusNotFound, "no active intervention", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, iv)
}

func (s *Server) handleInterventionHistory(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"history": s.engine.InterventionHistory(),
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	iv, err := s.engine.AcknowledgeIntervention()
	if err != nil {
		s.interventionError(w, err, "failed to acknowledge intervention")
		return
	}
	s.jsonResponse(w, http.StatusOK, iv)
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	iv, err := s.engine.EscalateIntervention()
	if err != nil {
		s.interventionError(w, err, "failed to escalate intervention")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"intervention": iv,
		"mode":         s.engine.Conversations().Session().Mode,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resolution string `json:"resolution,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	iv, err := s.engine.ResolveIntervention(req.Resolution)
	if err != nil {
		s.interventionError(w, err, "failed to resolve intervention")
		return
	}
	s.jsonResponse(w, http.StatusOK, iv)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	iv, err := s.engine.DismissIntervention()
	if err != nil {
		s.interventionError(w, err, "failed to dismiss intervention")
		return
	}
	s.jsonResponse(w, http.StatusOK, iv)
}

// Conversation handlers

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.engine.Conversations().Session())
}

func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode    string         `json:"mode,omitempty"`
		Context map[string]any `json:"context,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	mode := conversation.ModeFriend
	switch req.Mode {
	case "", string(conversation.ModeFriend):
	case string(conversation.ModeCoach):
		mode = conversation.ModeCoach
	default:
		s.jsonError(w, http.StatusBadRequest, "mode must be friend or coach", nil)
		return
	}

	session, resp, err := s.engine.OpenConversation(r.Context(), mode, req.Context)
	if err != nil {
		if err == conversation.ErrSuperseded {
			s.jsonError(w, http.StatusGone, "conversation was replaced while opening", nil)
			return
		}
		s.jsonError(w, http.StatusBadGateway, "assistant request failed", err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"session":  session,
		"response": resp,
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Content == "" {
		s.jsonError(w, http.StatusBadRequest, "content is required", nil)
		return
	}

	resp, err := s.engine.Conversations().RespondToUser(r.Context(), req.Content,
		s.engine.Monitor().Snapshot())
	if err != nil {
		switch err {
		case domain.ErrConversationClosed:
			s.jsonError(w, http.StatusConflict, "no open conversation", nil)
		case conversation.ErrSuperseded:
			s.jsonError(w, http.StatusGone, "conversation was replaced while responding", nil)
		default:
			s.jsonError(w, http.StatusBadGateway, "assistant request failed", err)
		}
		return
	}

	if resp.ShouldEscalate {
		s.engine.EscalateIntervention()
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"response": resp,
		"session":  s.engine.Conversations().Session(),
	})
}

func (s *Server) handleConfirmAction(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid message id", err)
		return
	}

	var req struct {
		ActionID string         `json:"action_id"`
		Params   map[string]any `json:"params,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	confirmed := s.engine.Conversations().ConfirmAction(messageID, req.ActionID, req.Params)
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"confirmed": confirmed,
	})
}

func (s *Server) handleCloseConversation(w http.ResponseWriter, r *http.Request) {
	s.engine.Conversations().Close()
	w.WriteHeader(http.StatusNoContent)
}

// Tracker handlers

func (s *Server) handlePostpone(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	count := s.engine.RecordPostpone(r.Context(), taskID)
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"task_id":        taskID,
		"postpone_count": count,
	})
}

func (s *Server) handleGetPostpones(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	count, ok := s.engine.Tracker().PostponeCount(taskID)
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"task_id":        taskID,
		"postpone_count": count,
		"tracked":        ok,
	})
}

func (s *Server) handlePutSuggestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Priority  string `json:"priority"`
		Rationale string `json:"rationale,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Priority == "" {
		s.jsonError(w, http.StatusBadRequest, "priority is required", nil)
		return
	}

	suggestion := s.engine.Tracker().PutSuggestion(r.PathValue("id"), req.Priority, req.Rationale)
	s.jsonResponse(w, http.StatusOK, suggestion)
}

func (s *Server) handleConfirmSuggestion(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Tracker().ConfirmSuggestion(r.PathValue("id")) {
		s.jsonError(w, http.StatusNotFound, "no suggestion for task", nil)
		return
	}
	suggestion, _ := s.engine.Tracker().Suggestion(r.PathValue("id"))
	s.jsonResponse(w, http.StatusOK, suggestion)
}

func (s *Server) handleDismissSuggestion(w http.ResponseWriter, r *http.Request) {
	s.engine.Tracker().DismissSuggestion(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// Error helpers

func (s *Server) hierarchyError(w http.ResponseWriter, err error, message string) {
	switch err {
	case domain.ErrSeasonNotFound, domain.ErrChapterNotFound,
		domain.ErrQuestNotFound, domain.ErrTaskNotFound:
		s.jsonError(w, http.StatusNotFound, err.Error(), nil)
	default:
		s.jsonError(w, http.StatusInternalServerError, message, err)
	}
}

func (s *Server) interventionError(w http.ResponseWriter, err error, message string) {
	if err == domain.ErrNoActiveIntervention {
		s.jsonError(w, http.StatusNotFound, "no active intervention", nil)
		return
	}
	s.jsonError(w, http.StatusInternalServerError, message, err)
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

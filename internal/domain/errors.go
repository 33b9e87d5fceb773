package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by services to
// communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// Intervention errors
var (
	ErrInterventionActive   = errors.New("an intervention is already active")
	ErrNoActiveIntervention = errors.New("no active intervention")
)

// Trigger errors
var (
	ErrTriggerNotFound = errors.New("trigger not found")
)

// Conversation errors
var (
	ErrConversationClosed = errors.New("conversation is closed")
)

// Hierarchy errors
var (
	ErrSeasonNotFound  = errors.New("season not found")
	ErrChapterNotFound = errors.New("chapter not found")
	ErrQuestNotFound   = errors.New("quest not found")
	ErrTaskNotFound    = errors.New("task not found")
)

// General errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

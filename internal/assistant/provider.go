// Package assistant is the contract with the AI responder collaborator. The
// core only depends on the Provider interface and the response shape; prompt
// and response content quality are the provider's problem.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"questpulse/internal/monitor"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrNoDefaultProvider = errors.New("no default provider configured")
)

// Persona selects which voice answers: the supportive friend or the more
// directive coach.
type Persona string

const (
	PersonaFriend Persona = "friend"
	PersonaCoach  Persona = "coach"
)

// Action is a concrete step the assistant suggests the user confirm.
type Action struct {
	ID     string         `json:"id"`
	Label  string         `json:"label"`
	Kind   string         `json:"kind"` // reschedule, split, drop, focus
	Params map[string]any `json:"params,omitempty"`
}

// Response is the shape every assistant call returns.
type Response struct {
	Message          string   `json:"message"`
	SuggestedActions []Action `json:"suggested_actions,omitempty"`
	ShouldEscalate   bool     `json:"should_escalate,omitempty"`
	ShouldClose      bool     `json:"should_close,omitempty"`
}

// Turn is one prior exchange handed to the provider as context.
type Turn struct {
	Role    string `json:"role"` // user, friend, coach, system
	Content string `json:"content"`
}

// Provider defines the interface for conversational assistant backends.
type Provider interface {
	// Name returns the provider name
	Name() string

	// InitialResponse opens a conversation for a fired trigger
	InitialResponse(ctx context.Context, persona Persona, triggerType string, snapshot monitor.Snapshot, extra map[string]any) (*Response, error)

	// RespondToUser continues a conversation after a user message
	RespondToUser(ctx context.Context, persona Persona, userText string, history []Turn, snapshot monitor.Snapshot) (*Response, error)
}

// Registry manages assistant providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	defaultP  string
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// SetDefault sets the default provider
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	r.defaultP = name
	return nil
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered provider names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Default returns the default provider, falling back to any registered one.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultP != "" {
		if p, ok := r.providers[r.defaultP]; ok {
			return p, nil
		}
	}
	for _, p := range r.providers {
		return p, nil
	}
	return nil, ErrNoDefaultProvider
}

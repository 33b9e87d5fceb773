package assistant

import (
	"context"
	"fmt"

	"questpulse/internal/monitor"
)

// ScriptedProvider is a deterministic offline provider. It ships as the
// fallback when no API key is configured and doubles as the test double for
// everything above the provider boundary.
type ScriptedProvider struct{}

// NewScriptedProvider creates a scripted provider.
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{}
}

func (p *ScriptedProvider) Name() string { return "scripted" }

func (p *ScriptedProvider) InitialResponse(_ context.Context, persona Persona, triggerType string, snapshot monitor.Snapshot, _ map[string]any) (*Response, error) {
	resp := &Response{}
	switch persona {
	case PersonaCoach:
		resp.Message = fmt.Sprintf("Let's deal with this directly: %s. Pick one thing to fix right now.", triggerType)
	default:
		resp.Message = fmt.Sprintf("Hey, I noticed something (%s). Want to talk it through?", triggerType)
	}
	if len(snapshot.AtRiskQuests) > 0 {
		resp.SuggestedActions = append(resp.SuggestedActions, Action{
			ID:    "focus-at-risk",
			Label: "Focus on the quest most at risk",
			Kind:  "focus",
			Params: map[string]any{
				"quest_id": snapshot.AtRiskQuests[0],
			},
		})
	}
	return resp, nil
}

func (p *ScriptedProvider) RespondToUser(_ context.Context, persona Persona, userText string, history []Turn, _ monitor.Snapshot) (*Response, error) {
	resp := &Response{}
	switch persona {
	case PersonaCoach:
		resp.Message = "Noted. What is the single next step, and when will you do it?"
	default:
		resp.Message = "That makes sense. Small steps still count."
	}
	// A long back-and-forth at friend level suggests the coach should step in.
	if persona == PersonaFriend && len(history) >= 6 {
		resp.ShouldEscalate = true
	}
	if userText == "done" || userText == "all set" {
		resp.ShouldClose = true
	}
	return resp, nil
}

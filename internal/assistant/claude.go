package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"questpulse/internal/monitor"
)

// ClaudeProvider implements the Provider interface against Anthropic's API.
type ClaudeProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// ClaudeConfig holds configuration for the Claude provider
type ClaudeConfig struct {
	APIKey  string
	BaseURL string // default: https://api.anthropic.com
	Model   string // default: claude-sonnet-4-20250514
}

// NewClaudeProvider creates a new Claude provider
func NewClaudeProvider(cfg ClaudeConfig) *ClaudeProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}

	return &ClaudeProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{},
	}
}

func (p *ClaudeProvider) Name() string {
	return "claude"
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
	System    string          `json:"system,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// InitialResponse asks the persona to open a conversation about a fired
// trigger.
func (p *ClaudeProvider) InitialResponse(ctx context.Context, persona Persona, triggerType string, snapshot monitor.Snapshot, extra map[string]any) (*Response, error) {
	user := fmt.Sprintf("A %q trigger just fired. Open the conversation.", triggerType)
	if len(extra) > 0 {
		if ctxJSON, err := json.Marshal(extra); err == nil {
			user += "\nExtra context: " + string(ctxJSON)
		}
	}
	return p.call(ctx, persona, snapshot, []claudeMessage{{Role: "user", Content: user}})
}

// RespondToUser continues the conversation after a user message.
func (p *ClaudeProvider) RespondToUser(ctx context.Context, persona Persona, userText string, history []Turn, snapshot monitor.Snapshot) (*Response, error) {
	msgs := make([]claudeMessage, 0, len(history)+1)
	for _, turn := range history {
		role := "assistant"
		if turn.Role == "user" {
			role = "user"
		}
		msgs = append(msgs, claudeMessage{Role: role, Content: turn.Content})
	}
	msgs = append(msgs, claudeMessage{Role: "user", Content: userText})
	return p.call(ctx, persona, snapshot, msgs)
}

func (p *ClaudeProvider) call(ctx context.Context, persona Persona, snapshot monitor.Snapshot, msgs []claudeMessage) (*Response, error) {
	req := claudeRequest{
		Model:     p.model,
		MaxTokens: 1024,
		Messages:  msgs,
		System:    systemPrompt(persona, snapshot),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var claudeResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return parseAssistantReply(text.String()), nil
}

func systemPrompt(persona Persona, snapshot monitor.Snapshot) string {
	var b strings.Builder
	switch persona {
	case PersonaCoach:
		b.WriteString("You are the coach: direct, structured, focused on unblocking the user's plan.\n")
	default:
		b.WriteString("You are the friend: warm, brief, encouraging, never preachy.\n")
	}
	b.WriteString("Reply with a JSON object: {\"message\": string, \"suggested_actions\": [{\"id\", \"label\", \"kind\"}], \"should_escalate\": bool, \"should_close\": bool}.\n")

	if stateJSON, err := json.Marshal(snapshot); err == nil {
		b.WriteString("Current health snapshot: ")
		b.Write(stateJSON)
	}
	return b.String()
}

// parseAssistantReply decodes the structured reply; a provider that answers
// in plain prose still yields a usable response.
func parseAssistantReply(text string) *Response {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var resp Response
	if err := json.Unmarshal([]byte(trimmed), &resp); err == nil && resp.Message != "" {
		return &resp
	}
	return &Response{Message: strings.TrimSpace(text)}
}

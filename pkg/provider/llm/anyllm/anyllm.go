// Package anyllm implements llm.ChatProvider on top of
// github.com/mozilla-ai/any-llm-go, a unified multi-provider client. The
// gateway uses it for the Anthropic backend; the other backends are exposed
// for deployments that prefer one client across providers.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/echohall/voicegate/pkg/provider/llm"
)

// DefaultClaudeModel is the Claude model used for voice conversations when
// none is configured.
const DefaultClaudeModel = "claude-haiku-4-5-20251001"

var _ llm.ChatProvider = (*Provider)(nil)

// Provider wraps one any-llm-go backend behind llm.ChatProvider.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New creates a Provider for the given backend name, one of "anthropic",
// "openai", or "ollama". model is the default model for requests that leave
// Model empty. Without an API key option the backend falls back to its
// environment variable (ANTHROPIC_API_KEY, OPENAI_API_KEY).
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	var (
		backend anyllmlib.Provider
		err     error
	)
	switch strings.ToLower(providerName) {
	case "anthropic", "claude":
		backend, err = anthropic.New(opts...)
	case "openai":
		backend, err = anyllmoai.New(opts...)
	case "ollama":
		backend, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: anthropic, openai, ollama", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	name := strings.ToLower(providerName)
	if name == "anthropic" {
		name = "claude"
	}
	return &Provider{backend: backend, name: name, model: model}, nil
}

// NewClaude creates a Provider backed by Anthropic using the default Claude
// model. Without options it reads the ANTHROPIC_API_KEY environment variable.
func NewClaude(opts ...anyllmlib.Option) (*Provider, error) {
	return New("anthropic", DefaultClaudeModel, opts...)
}

// Name implements llm.ChatProvider.
func (p *Provider) Name() string { return p.name }

// Chat implements llm.ChatProvider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.Message, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return llm.Message{}, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("anyllm: empty choices in response")
	}

	choice := resp.Choices[0]
	out := llm.Message{
		Role:    "assistant",
		Content: choice.Message.ContentString(),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// buildParams converts a ChatRequest into anyllm CompletionParams.
func (p *Provider) buildParams(req llm.ChatRequest) anyllmlib.CompletionParams {
	model := req.Model
	if model == "" {
		model = p.model
	}

	params := anyllmlib.CompletionParams{
		Model:    model,
		Messages: make([]anyllmlib.Message, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, convertMessage(m))
	}
	for _, td := range req.Tools {
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}
	return params
}

func convertMessage(m llm.Message) anyllmlib.Message {
	msg := anyllmlib.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, anyllmlib.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: anyllmlib.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return msg
}

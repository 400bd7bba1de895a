// Package openai implements llm.ChatProvider on the official OpenAI Go SDK.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/echohall/voicegate/pkg/provider/llm"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gpt-4o-mini"

var _ llm.ChatProvider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the model used when a request leaves Model empty.
// Defaults to gpt-4o-mini.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithTimeout bounds each completion request. Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider wraps the OpenAI chat completions API.
type Provider struct {
	client  oai.Client
	model   string
	baseURL string
	timeout time.Duration
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}

	p := &Provider{
		model:   DefaultModel,
		timeout: 60 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: p.timeout}),
	}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(clientOpts...)
	return p, nil
}

// Name implements llm.ChatProvider.
func (p *Provider) Name() string { return "openai" }

// Chat implements llm.ChatProvider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.Message, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, convertMessage(m))
	}
	for _, td := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(td.Parameters),
			},
		})
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Message{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("openai: chat completion returned no choices")
	}

	choice := resp.Choices[0].Message
	out := llm.Message{Role: "assistant", Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// convertMessage maps one history message onto the SDK's message union.
func convertMessage(m llm.Message) oai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content)
	case "tool":
		return oai.ToolMessage(m.Content, m.ToolCallID)
	case "assistant":
		var asst oai.ChatCompletionAssistantMessageParam
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	default:
		return oai.UserMessage(m.Content)
	}
}

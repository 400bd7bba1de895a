// Package convo implements the conversation orchestrator: the tool-calling
// loop between the user, the language model, and the tool registry.
//
// Core flow per turn:
//  1. Append the user message, trim history.
//  2. Issue a chat completion with the tool schemas.
//  3. The model answers with text (done) or tool calls (execute each,
//     append the results, loop back to 2).
//  4. After maxToolCalls iterations the tools are withheld to force a
//     text answer.
package convo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/echohall/voicegate/internal/tools"
	"github.com/echohall/voicegate/pkg/provider/llm"
)

const (
	defaultMaxToolCalls = 5
	defaultMaxHistory   = 20

	// exhaustedReply is spoken when the tool loop runs out of iterations
	// without producing any text.
	exhaustedReply = "I wasn't able to complete that request."
)

// ModelHost answers model-availability queries. *ollama.Client satisfies it.
type ModelHost interface {
	HasModel(ctx context.Context, name string) (bool, error)
}

// ToolCallFunc is notified before each tool execution, for UI telemetry.
type ToolCallFunc func(name, arguments string)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxToolCalls bounds tool-loop iterations per turn. Defaults to 5.
func WithMaxToolCalls(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxToolCalls = n
		}
	}
}

// WithMaxHistory bounds retained history messages. Defaults to 20.
func WithMaxHistory(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxHistory = n
		}
	}
}

// WithModelHost enables model-availability checks against a local host.
func WithModelHost(host ModelHost, primary, fallback string) Option {
	return func(o *Orchestrator) {
		o.host = host
		o.primaryModel = primary
		o.fallbackModel = fallback
	}
}

// WithClock overrides the system-prompt clock in tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns one session's conversation state and drives the
// tool-calling loop. Safe for concurrent use, though turns are serialized.
type Orchestrator struct {
	reg *tools.Registry

	mu          sync.Mutex
	provider    llm.ChatProvider
	activeModel string
	history     []llm.Message

	host          ModelHost
	primaryModel  string
	fallbackModel string

	maxToolCalls int
	maxHistory   int
	now          func() time.Time
}

// New creates an Orchestrator using the given provider and tool registry.
func New(provider llm.ChatProvider, reg *tools.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reg:          reg,
		provider:     provider,
		maxToolCalls: defaultMaxToolCalls,
		maxHistory:   defaultMaxHistory,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Provider returns the active chat provider.
func (o *Orchestrator) Provider() llm.ChatProvider {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.provider
}

// SetProvider switches the chat backend. History is retained; the model
// selection resets to the new provider's default.
func (o *Orchestrator) SetProvider(p llm.ChatProvider) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.provider = p
	o.activeModel = ""
}

// ActiveModel returns the model used for completions. Empty means the
// provider default.
func (o *Orchestrator) ActiveModel() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeModel
}

// SetModel switches the active model and clears history, since histories
// rarely transfer coherently between models.
func (o *Orchestrator) SetModel(model string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activeModel = model
	o.history = nil
}

// ClearHistory resets the conversation.
func (o *Orchestrator) ClearHistory() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
}

// History returns a snapshot of the retained conversation.
func (o *Orchestrator) History() []llm.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]llm.Message, len(o.history))
	copy(out, o.history)
	return out
}

// EnsureModel checks availability against the model host and picks the
// active model: the primary when installed, else the fallback, else "".
// Without a configured host the primary is assumed available.
func (o *Orchestrator) EnsureModel(ctx context.Context) (string, error) {
	o.mu.Lock()
	host, primary, fallback := o.host, o.primaryModel, o.fallbackModel
	o.mu.Unlock()

	if host == nil {
		return o.ActiveModel(), nil
	}

	ok, err := host.HasModel(ctx, primary)
	if err != nil {
		return "", fmt.Errorf("convo: check model availability: %w", err)
	}
	active := ""
	switch {
	case ok:
		active = primary
	default:
		ok, err = host.HasModel(ctx, fallback)
		if err != nil {
			return "", fmt.Errorf("convo: check model availability: %w", err)
		}
		if ok {
			slog.Warn("preferred model not installed, using fallback",
				"preferred", primary, "fallback", fallback)
			active = fallback
		}
	}

	o.mu.Lock()
	o.activeModel = active
	o.mu.Unlock()
	return active, nil
}

// Chat runs one user turn through the tool-calling loop and returns the
// assistant's final text. onToolCall may be nil.
func (o *Orchestrator) Chat(ctx context.Context, userInput string, onToolCall ToolCallFunc) (string, error) {
	o.mu.Lock()
	o.history = append(o.history, llm.Message{Role: "user", Content: userInput})
	o.history = trimHistory(o.history, o.maxHistory)

	provider := o.provider
	model := o.activeModel
	working := make([]llm.Message, 0, len(o.history)+1)
	working = append(working, llm.Message{Role: "system", Content: buildSystemPrompt(o.now())})
	working = append(working, o.history...)
	o.mu.Unlock()

	toolDefs := o.reg.Definitions()

	var text string
	for iteration := 0; iteration < o.maxToolCalls; iteration++ {
		req := llm.ChatRequest{
			Model:           model,
			Messages:        working,
			DisableThinking: true,
		}
		// Withhold tools on the last iteration to force a text answer.
		if iteration < o.maxToolCalls-1 {
			req.Tools = toolDefs
		}

		resp, err := provider.Chat(ctx, req)
		if err != nil {
			return "", fmt.Errorf("convo: chat completion: %w", err)
		}

		text = StripThinking(resp.Content)
		toolCalls := resp.ToolCalls

		// Some models emit tool calls as plain text instead of using the
		// structured protocol.
		if len(toolCalls) == 0 && text != "" {
			if parsed := ParseTextToolCalls(text); len(parsed) > 0 {
				slog.Info("detected tool calls in text output", "count", len(parsed))
				toolCalls = parsed
				text = ""
			}
		}

		if len(toolCalls) == 0 {
			if text != "" {
				o.appendHistory(llm.Message{Role: "assistant", Content: text})
			}
			return text, nil
		}

		assistantMsg := llm.Message{Role: "assistant", Content: text, ToolCalls: toolCalls}
		o.appendHistory(assistantMsg)
		working = append(working, assistantMsg)

		for _, tc := range toolCalls {
			if onToolCall != nil {
				onToolCall(tc.Name, tc.Arguments)
			}
			result := tools.Dispatch(ctx, o.reg, tc.Name, tc.Arguments)
			toolMsg := llm.Message{Role: "tool", Content: result, ToolCallID: tc.ID}
			o.appendHistory(toolMsg)
			working = append(working, toolMsg)
		}
	}

	if text != "" {
		return text, nil
	}
	return exhaustedReply, nil
}

func (o *Orchestrator) appendHistory(m llm.Message) {
	o.mu.Lock()
	o.history = append(o.history, m)
	o.mu.Unlock()
}

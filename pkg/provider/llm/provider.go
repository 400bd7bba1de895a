// Package llm defines the ChatProvider interface for language-model
// backends.
//
// The conversation orchestrator issues non-streaming chat completions: one
// request per tool-loop iteration, each returning a full assistant message
// that may carry tool calls. Providers wrap a remote API (OpenAI, Anthropic)
// or a local model host (Ollama) behind this uniform surface.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// ChatRequest carries everything one completion needs. Messages must be
// non-empty; the first message is typically the system prompt.
type ChatRequest struct {
	// Model is the model identifier. Empty means the provider default.
	Model string

	// Messages is the ordered conversation, system prompt included.
	Messages []Message

	// Tools is the set of tool definitions offered to the model. Empty
	// means no tools — used on the final loop iteration to force a text
	// answer.
	Tools []ToolDefinition

	// DisableThinking asks reasoning-capable models to skip emitting
	// thinking output. Providers without the concept ignore it.
	DisableThinking bool
}

// ChatProvider is the abstraction over any chat-completion backend.
type ChatProvider interface {
	// Chat sends req and waits for the full assistant message.
	Chat(ctx context.Context, req ChatRequest) (Message, error)

	// Name returns the provider's identifier ("ollama", "openai", "claude").
	Name() string
}

// Package mock provides a scriptable llm.ChatProvider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/echohall/voicegate/pkg/provider/llm"
)

var _ llm.ChatProvider = (*Provider)(nil)

// Provider returns scripted responses in order and records each request.
type Provider struct {
	mu sync.Mutex

	// ChatFunc, when set, handles every call. Otherwise Responses are
	// returned in order, then Err (or the last response again when Err
	// is nil).
	ChatFunc  func(ctx context.Context, req llm.ChatRequest) (llm.Message, error)
	Responses []llm.Message
	Err       error

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	requests []llm.ChatRequest
	next     int
}

// Chat implements llm.ChatProvider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.Message, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	i := p.next
	p.next++
	p.mu.Unlock()

	if p.ChatFunc != nil {
		return p.ChatFunc(ctx, req)
	}
	if i < len(p.Responses) {
		return p.Responses[i], nil
	}
	if p.Err != nil {
		return llm.Message{}, p.Err
	}
	if len(p.Responses) > 0 {
		return p.Responses[len(p.Responses)-1], nil
	}
	return llm.Message{Role: "assistant"}, nil
}

// Name implements llm.ChatProvider.
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// Requests returns a snapshot of recorded requests.
func (p *Provider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

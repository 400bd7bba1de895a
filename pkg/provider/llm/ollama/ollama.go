// Package ollama provides a ChatProvider backed by a local Ollama server,
// plus the model-management surface the gateway exposes to clients: the
// installed/available model catalog and streaming model pulls.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/echohall/voicegate/pkg/provider/llm"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "qwen3:8b"
	defaultTimeout = 60 * time.Second
)

// Compile-time assertion that Client implements llm.ChatProvider.
var _ llm.ChatProvider = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the Ollama server address. Defaults to
// http://localhost:11434.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithDefaultModel sets the model used when a request leaves Model empty.
func WithDefaultModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.defaultModel = model
		}
	}
}

// WithTimeout sets the per-request HTTP timeout for chat and catalog calls.
// Model pulls are unbounded regardless. Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Client talks to one Ollama server. Safe for concurrent use.
type Client struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

// New creates a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name implements llm.ChatProvider.
func (c *Client) Name() string { return "ollama" }

// ─── Chat ─────────────────────────────────────────────────────────────────────

// wireToolCall is the tool-call shape on the Ollama chat wire: arguments
// arrive as a JSON object, not a string.
type wireToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// wireMessage is one message on the Ollama chat wire.
type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

// chatRequest is the body for POST /api/chat.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Think    bool          `json:"think"`
	Tools    []wireToolDef `json:"tools,omitempty"`
}

type wireToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

// Chat implements llm.ChatProvider via POST /api/chat with stream:false.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.Message, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	body := chatRequest{
		Model:  model,
		Stream: false,
		Think:  !req.DisableThinking,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, toWireMessage(m))
	}
	for _, td := range req.Tools {
		var wd wireToolDef
		wd.Type = "function"
		wd.Function.Name = td.Name
		wd.Function.Description = td.Description
		wd.Function.Parameters = td.Parameters
		body.Tools = append(body.Tools, wd)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return llm.Message{}, fmt.Errorf("ollama: marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return llm.Message{}, fmt.Errorf("ollama: create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return llm.Message{}, fmt.Errorf("ollama: POST /api/chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return llm.Message{}, fmt.Errorf("ollama: POST /api/chat returned status %d", resp.StatusCode)
	}

	var result struct {
		Message wireMessage `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return llm.Message{}, fmt.Errorf("ollama: decode chat response: %w", err)
	}

	return fromWireMessage(result.Message), nil
}

func toWireMessage(m llm.Message) wireMessage {
	wm := wireMessage{Role: m.Role, Content: m.Content}
	for _, tc := range m.ToolCalls {
		var wtc wireToolCall
		wtc.Function.Name = tc.Name
		if tc.Arguments != "" {
			wtc.Function.Arguments = json.RawMessage(tc.Arguments)
		} else {
			wtc.Function.Arguments = json.RawMessage("{}")
		}
		wm.ToolCalls = append(wm.ToolCalls, wtc)
	}
	return wm
}

func fromWireMessage(wm wireMessage) llm.Message {
	m := llm.Message{Role: wm.Role, Content: wm.Content}
	if m.Role == "" {
		m.Role = "assistant"
	}
	for _, wtc := range wm.ToolCalls {
		args := "{}"
		if len(wtc.Function.Arguments) > 0 {
			args = string(wtc.Function.Arguments)
		}
		m.ToolCalls = append(m.ToolCalls, llm.ToolCall{
			Name:      wtc.Function.Name,
			Arguments: args,
		})
	}
	return m
}

// ─── Model catalog ────────────────────────────────────────────────────────────

// curatedModel is one entry of the built-in catalog of models known to work
// well for voice interaction, sorted by parameter count ascending.
type curatedModel struct {
	Name      string
	Label     string
	Params    string
	ParamsNum float64
}

var curatedCatalog = []curatedModel{
	{"llama3.2:1b", "Llama 3.2", "1B", 1.0},
	{"gemma2:2b", "Gemma 2", "2B", 2.0},
	{"llama3.2:3b", "Llama 3.2", "3B", 3.0},
	{"qwen2.5:3b", "Qwen 2.5", "3B", 3.0},
	{"phi3:mini", "Phi-3 Mini", "3.8B", 3.8},
	{"mistral", "Mistral", "7B", 7.0},
	{"qwen2.5:7b", "Qwen 2.5", "7B", 7.0},
	{"deepseek-r1:7b", "DeepSeek R1", "7B", 7.0},
	{"llama3.1:8b", "Llama 3.1", "8B", 8.0},
	{"gemma2:9b", "Gemma 2", "9B", 9.0},
}

// InstalledModel describes one model reported by the server, enriched with
// curated metadata when the name is known.
type InstalledModel struct {
	Name      string  `json:"name"`
	Size      int64   `json:"size"`
	SizeLabel string  `json:"size_label"`
	Label     string  `json:"label,omitempty"`
	Params    string  `json:"params,omitempty"`
	ParamsNum float64 `json:"params_num,omitempty"`
}

// AvailableModel is a curated model not yet installed.
type AvailableModel struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Params string `json:"params"`
}

// Catalog is the model inventory shape sent to clients.
type Catalog struct {
	Installed []InstalledModel `json:"ollama_installed"`
	Available []AvailableModel `json:"ollama_available"`
	Online    bool             `json:"ollama_online"`
}

// ListModels queries GET /api/tags for installed models. A connection error
// means the server is offline and yields an error, not an empty list.
func (c *Client) ListModels(ctx context.Context) ([]InstalledModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: create tags request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: GET /api/tags: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: GET /api/tags returned status %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama: decode tags response: %w", err)
	}

	out := make([]InstalledModel, 0, len(result.Models))
	for _, m := range result.Models {
		out = append(out, InstalledModel{
			Name:      m.Name,
			Size:      m.Size,
			SizeLabel: formatSize(m.Size),
		})
	}
	return out, nil
}

// Catalog builds the full model inventory: installed models enriched with
// curated metadata, curated models still available to pull, and the online
// flag. An unreachable server yields an offline catalog, not an error.
func (c *Client) Catalog(ctx context.Context) Catalog {
	installed, err := c.ListModels(ctx)
	if err != nil {
		return Catalog{
			Installed: []InstalledModel{},
			Available: availableFrom(nil),
			Online:    false,
		}
	}

	// The server reports "mistral:latest" where the catalog says "mistral";
	// treat both forms as the same model.
	curatedByName := make(map[string]curatedModel, len(curatedCatalog)*2)
	for _, m := range curatedCatalog {
		curatedByName[m.Name] = m
		curatedByName[m.Name+":latest"] = m
	}

	installedNames := make(map[string]bool, len(installed)*2)
	for i := range installed {
		installedNames[installed[i].Name] = true
		if short, ok := strings.CutSuffix(installed[i].Name, ":latest"); ok {
			installedNames[short] = true
		}
		if cat, ok := curatedByName[installed[i].Name]; ok {
			installed[i].Label = cat.Label
			installed[i].Params = cat.Params
			installed[i].ParamsNum = cat.ParamsNum
		}
	}

	// Smallest first.
	sort.Slice(installed, func(i, j int) bool {
		return installed[i].Size < installed[j].Size
	})

	return Catalog{
		Installed: installed,
		Available: availableFrom(installedNames),
		Online:    true,
	}
}

func availableFrom(installedNames map[string]bool) []AvailableModel {
	out := make([]AvailableModel, 0, len(curatedCatalog))
	for _, m := range curatedCatalog {
		if installedNames[m.Name] {
			continue
		}
		out = append(out, AvailableModel{Name: m.Name, Label: m.Label, Params: m.Params})
	}
	return out
}

// HasModel reports whether name (or name:latest) is installed.
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	installed, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range installed {
		if m.Name == name || m.Name == name+":latest" {
			return true, nil
		}
	}
	return false, nil
}

// ─── Model pull ───────────────────────────────────────────────────────────────

// PullProgress is one progress frame from a streaming model pull. Err is set
// on the final frame when the pull fails.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Err       error  `json:"-"`
}

// Percent returns download progress in [0, 100], or 0 when the frame does
// not carry byte counts.
func (p PullProgress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// Pull streams a model download via POST /api/pull. The returned channel
// emits one PullProgress per JSON line from the server and is closed when
// the pull completes, fails, or ctx is cancelled. Pull requests carry no
// timeout; cancellation is ctx's job.
func (c *Client) Pull(ctx context.Context, name string) (<-chan PullProgress, error) {
	body, err := json.Marshal(map[string]any{"name": name, "stream": true})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal pull request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Pulls can run for many minutes; use a client without a timeout.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: POST /api/pull: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: POST /api/pull returned status %d", resp.StatusCode)
	}

	ch := make(chan PullProgress, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var frame struct {
				Status    string `json:"status"`
				Total     int64  `json:"total"`
				Completed int64  `json:"completed"`
				Error     string `json:"error"`
			}
			if err := json.Unmarshal(line, &frame); err != nil {
				continue
			}
			p := PullProgress{Status: frame.Status, Total: frame.Total, Completed: frame.Completed}
			if frame.Error != "" {
				p.Err = errors.New(frame.Error)
			}
			select {
			case ch <- p:
			case <-ctx.Done():
				return
			}
			if p.Err != nil {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case ch <- PullProgress{Err: fmt.Errorf("ollama: read pull stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// formatSize formats bytes into a human-readable size, e.g. "1.9GB".
func formatSize(size int64) string {
	switch {
	case size >= 1e9:
		return fmt.Sprintf("%.1fGB", float64(size)/1e9)
	case size >= 1e6:
		return fmt.Sprintf("%.0fMB", float64(size)/1e6)
	default:
		return fmt.Sprintf("%.0fKB", float64(size)/1e3)
	}
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	maxResults    = 5
	snippetMaxLen = 500

	tavilyEndpoint = "https://api.tavily.com/search"
	braveEndpoint  = "https://api.search.brave.com/res/v1/web/search"
	ddgEndpoint    = "https://api.duckduckgo.com/"
)

var (
	htmlTagRE    = regexp.MustCompile(`<[^>]+>`)
	htmlEntityRE = regexp.MustCompile(`&#x[0-9a-fA-F]+;|&[a-z]+;`)
)

// cleanHTML removes tags and common entities from search snippets.
func cleanHTML(s string) string {
	s = htmlTagRE.ReplaceAllString(s, "")
	s = htmlEntityRE.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

var _ Tool = (*WebSearch)(nil)

// WebSearch searches the web through a Tavily, Brave, DuckDuckGo fallback
// chain. Providers without an API key are skipped; a provider failure falls
// through to the next one.
type WebSearch struct {
	tavilyKey string
	braveKey  string

	tavilyURL string
	braveURL  string
	ddgURL    string

	httpClient *http.Client
}

// SearchOption configures a WebSearch.
type SearchOption func(*WebSearch)

// WithTavilyKey enables the Tavily backend.
func WithTavilyKey(key string) SearchOption {
	return func(w *WebSearch) { w.tavilyKey = key }
}

// WithBraveKey enables the Brave backend.
func WithBraveKey(key string) SearchOption {
	return func(w *WebSearch) { w.braveKey = key }
}

// WithSearchTimeout bounds each provider request. Defaults to 10 s.
func WithSearchTimeout(d time.Duration) SearchOption {
	return func(w *WebSearch) { w.httpClient.Timeout = d }
}

// NewWebSearch creates the web search tool.
func NewWebSearch(opts ...SearchOption) *WebSearch {
	w := &WebSearch{
		tavilyURL:  tavilyEndpoint,
		braveURL:   braveEndpoint,
		ddgURL:     ddgEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Name implements Tool.
func (w *WebSearch) Name() string { return "web_search" }

// Description implements Tool.
func (w *WebSearch) Description() string {
	return "Search the web for current information. Use for weather, news, " +
		"prices, recent events, or anything requiring up-to-date data."
}

// Schema implements Tool.
func (w *WebSearch) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
		},
		"required": []string{"query"},
	}
}

// Execute implements Tool.
func (w *WebSearch) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "Error: no search query provided.", nil
	}

	var result string
	if w.tavilyKey != "" {
		result = w.searchTavily(ctx, query)
	}
	if result == "" && w.braveKey != "" {
		result = w.searchBrave(ctx, query)
	}
	if result == "" {
		result = w.searchDuckDuckGo(ctx, query)
	}
	if result == "" {
		return fmt.Sprintf("Web search failed for '%s'. All search providers returned no results.", query), nil
	}
	return result, nil
}

// ─── Tavily ──────────────────────────────────────────────────────────────────

func (w *WebSearch) searchTavily(ctx context.Context, query string) string {
	body, _ := json.Marshal(map[string]any{
		"query":          query,
		"max_results":    maxResults,
		"include_answer": true,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.tavilyURL, bytes.NewReader(body))
	if err != nil {
		return ""
	}
	req.Header.Set("X-API-Key", w.tavilyKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		slog.Warn("tavily search failed", "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("tavily search failed", "status", resp.StatusCode)
		return ""
	}

	var data struct {
		Answer  string `json:"answer"`
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		slog.Warn("tavily search failed", "error", err)
		return ""
	}
	if len(data.Results) == 0 && data.Answer == "" {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Web search results for '%s':", query)
	if data.Answer != "" {
		fmt.Fprintf(&b, "\nDirect answer: %s\n", data.Answer)
	}
	for i, r := range data.Results {
		if i >= maxResults {
			break
		}
		title := cleanHTML(r.Title)
		if title == "" {
			title = "No title"
		}
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, title, r.URL)
		if snippet := truncate(cleanHTML(r.Content), snippetMaxLen); snippet != "" {
			fmt.Fprintf(&b, "\n   %s", snippet)
		}
	}
	slog.Info("tavily search", "results", len(data.Results), "query", truncate(query, 60))
	return b.String()
}

// ─── Brave ───────────────────────────────────────────────────────────────────

func (w *WebSearch) searchBrave(ctx context.Context, query string) string {
	u := fmt.Sprintf("%s?q=%s&count=%d", w.braveURL, url.QueryEscape(query), maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("X-Subscription-Token", w.braveKey)
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		slog.Warn("brave search failed", "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("brave search failed", "status", resp.StatusCode)
		return ""
	}

	var data struct {
		Infobox struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Facts       []struct {
				Label string `json:"label"`
				Value string `json:"value"`
			} `json:"facts"`
		} `json:"infobox"`
		Web struct {
			Results []struct {
				Title         string   `json:"title"`
				URL           string   `json:"url"`
				Description   string   `json:"description"`
				ExtraSnippets []string `json:"extra_snippets"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		slog.Warn("brave search failed", "error", err)
		return ""
	}
	if len(data.Web.Results) == 0 && data.Infobox.Title == "" {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Web search results for '%s':", query)
	if data.Infobox.Title != "" {
		fmt.Fprintf(&b, "\nInfobox: %s", data.Infobox.Title)
		if desc := cleanHTML(data.Infobox.Description); desc != "" {
			fmt.Fprintf(&b, "\n  %s", truncate(desc, snippetMaxLen))
		}
		for i, fact := range data.Infobox.Facts {
			if i >= 8 {
				break
			}
			fmt.Fprintf(&b, "\n  %s: %s", fact.Label, cleanHTML(fact.Value))
		}
	}
	for i, r := range data.Web.Results {
		if i >= maxResults {
			break
		}
		title := cleanHTML(r.Title)
		if title == "" {
			title = "No title"
		}
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, title, r.URL)
		if desc := truncate(cleanHTML(r.Description), snippetMaxLen); desc != "" {
			fmt.Fprintf(&b, "\n   %s", desc)
		}
		for j, extra := range r.ExtraSnippets {
			if j >= 2 {
				break
			}
			fmt.Fprintf(&b, "\n   %s", truncate(cleanHTML(extra), snippetMaxLen))
		}
	}
	slog.Info("brave search", "results", len(data.Web.Results), "query", truncate(query, 60))
	return b.String()
}

// ─── DuckDuckGo ──────────────────────────────────────────────────────────────

// searchDuckDuckGo queries the keyless Instant Answer API. It covers fewer
// queries than the paid backends but needs no credentials, which makes it
// the terminal fallback.
func (w *WebSearch) searchDuckDuckGo(ctx context.Context, query string) string {
	u := fmt.Sprintf("%s?q=%s&format=json&no_html=1&skip_disambig=1", w.ddgURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ""
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		slog.Warn("duckduckgo search failed", "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("duckduckgo search failed", "status", resp.StatusCode)
		return ""
	}

	var data struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		Answer        string `json:"Answer"`
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		slog.Warn("duckduckgo search failed", "error", err)
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Web search results for '%s':", query)
	n := 0
	if data.Answer != "" {
		fmt.Fprintf(&b, "\nDirect answer: %s", cleanHTML(data.Answer))
		n++
	}
	if data.AbstractText != "" {
		title := data.Heading
		if title == "" {
			title = "No title"
		}
		fmt.Fprintf(&b, "\n%d. %s (%s)\n   %s", n+1, title, data.AbstractURL,
			truncate(cleanHTML(data.AbstractText), snippetMaxLen))
		n++
	}
	for _, topic := range data.RelatedTopics {
		if n >= maxResults {
			break
		}
		if topic.Text == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "\n%d. %s (%s)", n, truncate(cleanHTML(topic.Text), snippetMaxLen), topic.FirstURL)
	}
	if n == 0 {
		return ""
	}
	slog.Info("duckduckgo search", "results", n, "query", truncate(query, 60))
	return b.String()
}

package convo

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/echohall/voicegate/pkg/provider/llm"
)

// thinkRE matches <think>...</think> blocks that thinking-capable models
// sometimes leak into their final content.
var thinkRE = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes leaked thinking blocks and trims whitespace.
func StripThinking(text string) string {
	return strings.TrimSpace(thinkRE.ReplaceAllString(text, ""))
}

// textToolRE matches tool calls emitted as inline text, e.g.
//
//	gc_search {"query": "weather in Austin"}
//	web_search({"query": "news"})
//
// Some models skip the structured tool-call protocol and write the call
// into their content instead.
var textToolRE = regexp.MustCompile(`(?s)(?:^|['"` + "`" + `\s])(\w+)\s*\(?\s*(\{[^}]*\})\s*\)?`)

// toolAliases maps model-invented tool names to registry names. Small
// models routinely rename tools (gc_search, get_notes) so the parser
// resolves through this table; unknown names are skipped.
var toolAliases = map[string]string{
	"gc_search":      "web_search",
	"search":         "web_search",
	"web_search":     "web_search",
	"check_calendar": "check_calendar",
	"calendar":       "check_calendar",
	"get_calendar":   "check_calendar",
	"search_notes":   "search_notes",
	"notes":          "search_notes",
	"get_notes":      "search_notes",
}

// ParseTextToolCalls detects tool calls embedded in text output and
// converts them to structured calls. Names missing from the alias table
// and brace groups that fail to parse as JSON are skipped.
func ParseTextToolCalls(text string) []llm.ToolCall {
	var out []llm.ToolCall
	for _, match := range textToolRE.FindAllStringSubmatch(text, -1) {
		name, ok := toolAliases[strings.ToLower(match[1])]
		if !ok {
			continue
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(match[2]), &args); err != nil {
			continue
		}
		out = append(out, llm.ToolCall{Name: name, Arguments: match[2]})
	}
	return out
}

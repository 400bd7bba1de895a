package convo

import "github.com/echohall/voicegate/pkg/provider/llm"

// trimHistory cuts messages down to at most limit entries from the tail,
// keeping tool groups intact. A tool group is an assistant message with
// tool_calls plus the tool messages answering it; cutting inside one makes
// the remaining history incoherent to the model. The returned slice never
// starts with a tool message.
func trimHistory(messages []llm.Message, limit int) []llm.Message {
	if len(messages) <= limit {
		return messages
	}

	cut := len(messages) - limit
	// Never leave a tool message at the head.
	for cut < len(messages) && messages[cut].Role == "tool" {
		cut++
	}
	// If the message just before the cut opened a tool group, keep the
	// whole group.
	if cut > 0 && len(messages[cut-1].ToolCalls) > 0 {
		cut--
		for cut > 0 && messages[cut-1].Role == "tool" {
			cut--
		}
	}
	return messages[cut:]
}

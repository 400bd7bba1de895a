package convo

import (
	"fmt"
	"time"
)

// systemTemplate is the assistant's system prompt. Answers are read aloud
// by TTS, so the prompt pushes for short conversational replies.
const systemTemplate = `You are a friendly voice assistant. Your replies are spoken aloud, so keep them short, conversational, and free of markdown, lists, or code.

Today is %s. The current time is %s.

You have tools for web search, calendar, and notes. Use them whenever a question needs current information or personal data instead of guessing. After a tool returns, answer from its result in one or two spoken sentences.`

// buildSystemPrompt fills the template with the current date and time.
func buildSystemPrompt(now time.Time) string {
	return fmt.Sprintf(systemTemplate,
		now.Format("Monday, January 02, 2006"),
		now.Format("03:04 PM"))
}

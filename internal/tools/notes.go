package tools

import (
	"context"
	"fmt"
	"strings"
)

var _ Tool = (*Notes)(nil)

// Notes is a stub tool backed by a fixed in-memory note set. Like Calendar
// it exists to prove diverse tool routing without a real backend.
type Notes struct{}

var fakeNotes = map[string]string{
	"shopping": "Shopping list (Feb 15):\n- Oat milk\n- Avocados\n- Sourdough bread\n- Dark chocolate\n- Olive oil",
	"recipe":   "Pasta recipe:\n1. Boil water, cook spaghetti 8 min\n2. Sauté garlic in olive oil\n3. Add crushed tomatoes, basil, salt\n4. Toss pasta, top with parmesan",
	"ideas":    "Project ideas:\n- Build a voice assistant with tool calling\n- Automate home lighting with HomeKit\n- Learn Rust by building a CLI tool",
}

// Name implements Tool.
func (n *Notes) Name() string { return "search_notes" }

// Description implements Tool.
func (n *Notes) Description() string {
	return "Search your personal notes for saved information, lists, and reminders."
}

// Schema implements Tool.
func (n *Notes) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search term to find in notes.",
			},
		},
		"required": []string{"query"},
	}
}

// Execute implements Tool. Matching is simple case-insensitive substring
// search over note keys and bodies.
func (n *Notes) Execute(_ context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	lower := strings.ToLower(query)

	var matches []string
	for _, key := range []string{"shopping", "recipe", "ideas"} {
		content := fakeNotes[key]
		if strings.Contains(key, lower) || strings.Contains(strings.ToLower(content), lower) {
			matches = append(matches, content)
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No notes found matching '%s'.", query), nil
	}
	return fmt.Sprintf("Notes matching '%s':\n\n%s", query, strings.Join(matches, "\n\n")), nil
}

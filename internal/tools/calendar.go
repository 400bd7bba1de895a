package tools

import (
	"context"
	"fmt"
	"time"
)

var _ Tool = (*Calendar)(nil)

// Calendar is a stub tool that returns fixed events. It exists to exercise
// multi-tool routing end to end without a real calendar backend.
type Calendar struct {
	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// Name implements Tool.
func (c *Calendar) Name() string { return "check_calendar" }

// Description implements Tool.
func (c *Calendar) Description() string {
	return "Check your calendar for upcoming events and appointments."
}

// Schema implements Tool.
func (c *Calendar) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date": map[string]any{
				"type":        "string",
				"description": "Date to check in YYYY-MM-DD format. Defaults to today.",
			},
		},
		"required": []string{},
	}
}

// Execute implements Tool.
func (c *Calendar) Execute(_ context.Context, args map[string]any) (string, error) {
	date := stringArg(args, "date")
	if date == "" {
		now := time.Now
		if c.Now != nil {
			now = c.Now
		}
		date = now().Format("2006-01-02")
	}
	return fmt.Sprintf("Calendar for %s:\n"+
		"- 9:00 AM: Team standup (Zoom)\n"+
		"- 11:30 AM: Lunch with Alex at Torchy's Tacos\n"+
		"- 2:00 PM: Dentist appointment\n"+
		"- 5:00 PM: Yoga class", date), nil
}

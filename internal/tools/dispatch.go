package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Dispatch executes a tool call and always returns a string, never an
// error. Arguments may arrive as a JSON-encoded string or an already-decoded
// mapping; malformed JSON, unknown tool names, and tool failures all come
// back as error strings the model can read and recover from.
func Dispatch(ctx context.Context, reg *Registry, name string, args any) string {
	decoded, errStr := decodeArgs(name, args)
	if errStr != "" {
		return errStr
	}

	tool := reg.Get(name)
	if tool == nil {
		return fmt.Sprintf("Error: unknown tool '%s'. Available tools: %s",
			name, strings.Join(reg.Names(), ", "))
	}

	result, err := safeExecute(ctx, tool, decoded)
	if err != nil {
		slog.Error("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Error executing '%s': %s", name, errKind(err))
	}
	slog.Info("tool executed", "tool", name, "result_chars", len(result))
	return result
}

// decodeArgs normalizes arguments to a mapping. A non-empty second return
// is the error string to hand back to the model.
func decodeArgs(name string, args any) (map[string]any, string) {
	switch v := args.(type) {
	case nil:
		return map[string]any{}, ""
	case map[string]any:
		return v, ""
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			snippet := v
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			return nil, fmt.Sprintf("Error: invalid JSON arguments for tool '%s': %s", name, snippet)
		}
		return decoded, ""
	default:
		return map[string]any{}, ""
	}
}

// safeExecute runs the tool and converts panics into errors so Dispatch
// keeps its never-raises contract.
func safeExecute(ctx context.Context, tool Tool, args map[string]any) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Execute(ctx, args)
}

// errKind renders an error as "<kind>: <message>" where kind is the
// concrete error type with package path and pointer marker stripped.
func errKind(err error) string {
	kind := fmt.Sprintf("%T", err)
	kind = strings.TrimPrefix(kind, "*")
	if i := strings.LastIndex(kind, "."); i >= 0 {
		kind = kind[i+1:]
	}
	return fmt.Sprintf("%s: %v", kind, err)
}

// stringArg extracts a string argument, returning "" when absent or not a
// string.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

package utils

import (
	"context"
	"log/slog"

	copilot "github.com/github/copilot-sdk/go"
)

// SessionToSlog bridges a Copilot session event onto the default slog
// logger. Session errors surface at warn level so a failed generation
// is visible without debug logging; all other event traffic stays at
// debug. Only populated payload fields become attributes.
func SessionToSlog(event copilot.SessionEvent) {
	level := slog.LevelDebug
	if event.Type == copilot.SessionError {
		level = slog.LevelWarn
	}

	log := slog.Default()
	ctx := context.Background()
	if !log.Enabled(ctx, level) {
		return
	}

	attrs := []any{"type", event.Type}
	attrs = appendAttr(attrs, "content", event.Data.Content)
	attrs = appendAttr(attrs, "deltaContent", event.Data.DeltaContent)
	attrs = appendAttr(attrs, "toolName", event.Data.ToolName)
	attrs = appendAttr(attrs, "toolResult", event.Data.Result)
	attrs = appendAttr(attrs, "toolCallID", event.Data.ToolCallID)
	attrs = appendAttr(attrs, "message", event.Data.Message)

	log.Log(ctx, level, "copilot event", attrs...)
}

// appendAttr adds a key/value pair only when the value is set.
func appendAttr[T any](attrs []any, name string, v *T) []any {
	if v == nil {
		return attrs
	}
	return append(attrs, name, *v)
}

// Package obslog provides structured, newline-delimited JSON event logging:
// one logger, context-carried run metadata, and a flat field map per event.
package obslog

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// RunInfo is contextual metadata threaded through a job run via context.Context.
type RunInfo struct {
	RunID    string
	Session  string
	Category string
	Ticker   string
}

type runInfoKey struct{}

// WithRunInfo attaches RunInfo to ctx for LogEvent to pick up automatically.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFromContext retrieves RunInfo previously attached with WithRunInfo.
func RunInfoFromContext(ctx context.Context) RunInfo {
	if info, ok := ctx.Value(runInfoKey{}).(RunInfo); ok {
		return info
	}
	return RunInfo{}
}

// Event writes one structured log line: a timestamp, level, event name, the
// context's RunInfo (if any), plus arbitrary fields.
func Event(ctx context.Context, level, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.Session != "" {
		payload["session"] = info.Session
	}
	if info.Category != "" {
		payload["category"] = info.Category
	}
	if info.Ticker != "" {
		payload["ticker"] = info.Ticker
	}
	for k, v := range fields {
		payload[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf(`{"level":"error","event":"log_marshal_failed","error":%q}`, err.Error())
		return
	}
	logger.Print(string(raw))
}

// Info logs at info level.
func Info(ctx context.Context, event string, fields map[string]any) { Event(ctx, "info", event, fields) }

// Warn logs at warn level.
func Warn(ctx context.Context, event string, fields map[string]any) { Event(ctx, "warn", event, fields) }

// Error logs at error level, including the error's message.
func Error(ctx context.Context, event string, err error, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	Event(ctx, "error", event, fields)
}

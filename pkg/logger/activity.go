package logger

import (
	"context"
	"time"
)

// RecordActivity writes a user-facing action to l, usually the activity logger.
func RecordActivity(ctx context.Context, l Logger, kind, platform, user string, details map[string]any) {
	l.Info(ctx, "activity",
		String("activity", kind),
		String("platform", platform),
		String("user", user),
		Any("details", nonNil(details)),
	)
}

// RecordPerformance writes how long an operation took to l.
func RecordPerformance(ctx context.Context, l Logger, operation string, took time.Duration, success bool, details map[string]any) {
	l.Info(ctx, "performance",
		String("operation", operation),
		Float64("duration_seconds", took.Seconds()),
		Bool("success", success),
		Any("details", nonNil(details)),
	)
}

// RecordSystemEvent maps an event type onto a log level of l.
// "error" and "warning" keep their level; everything else is info.
func RecordSystemEvent(ctx context.Context, l Logger, eventType, message string, details map[string]any) {
	fields := []Field{String("event", eventType), Any("details", nonNil(details))}
	switch eventType {
	case "error":
		l.Error(ctx, message, fields...)
	case "warning":
		l.Warn(ctx, message, fields...)
	default:
		l.Info(ctx, message, fields...)
	}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

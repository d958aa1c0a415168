package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const runIDKey ctxKey = "run_id"

// ContextWithRunID stores the run ID in the context.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run ID from context if present.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a component logger enriched with the run ID carried by ctx.
func FromContext(ctx context.Context, component string) *zerolog.Logger {
	l := WithComponent(component)
	if id := RunIDFromContext(ctx); id != "" {
		withRun := l.With().Str(FieldRunID, id).Logger()
		return &withRun
	}
	return l
}

// Package traceutil carries a trace id through a context into log entries.
package traceutil

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const _traceIDLogKey = "trace-id"

type traceIDKey struct{}

// SetTraceID sets the traceID into the context.
func SetTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// WithNewTraceID sets a random traceID into the context.
func WithNewTraceID(ctx context.Context) context.Context {
	return SetTraceID(ctx, uuid.NewString())
}

// TraceID returns the traceID from the context, or "" if there is none.
func TraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey{}).(string)
	return traceID
}

// TraceLogField returns a zap.Field for logging.
// It returns zap.Skip() if the traceID is not found in the context.
func TraceLogField(ctx context.Context) zap.Field {
	if traceID := TraceID(ctx); traceID != "" {
		return zap.String(_traceIDLogKey, traceID)
	}
	return zap.Skip()
}

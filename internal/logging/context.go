package logging

import (
	"context"
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// FieldTraceID is the log field carrying the trace id.
const FieldTraceID = "trace_id"

type traceIDKey struct{}

// fallback is used when no logger was attached to the context.
//
//nolint:gochecknoglobals // Shared default for contexts without a logger.
var fallback = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()

// NewTraceID returns a new, lexicographically sortable trace id.
func NewTraceID() string {
	return ulid.Make().String()
}

// ContextWithTraceID stores the trace id in ctx.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace id stored in ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// GetOrGenerateTraceID returns the trace id in ctx or a fresh one.
func GetOrGenerateTraceID(ctx context.Context) string {
	if id := TraceIDFromContext(ctx); id != "" {
		return id
	}
	return NewTraceID()
}

// FromContext returns the logger attached to ctx, tagged with the context's
// trace id. Contexts without a logger get an info-level stderr logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &fallback
	}
	if id := TraceIDFromContext(ctx); id != "" {
		traced := l.With().Str(FieldTraceID, id).Logger()
		return &traced
	}
	return l
}

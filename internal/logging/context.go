package logging

import (
	"context"
	"regexp"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxRequestIDLen bounds caller supplied request ids.
const maxRequestIDLen = 128

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

type requestCtxKey struct{}

// ContextFields returns the correlation fields carried by ctx: the active
// span and the request id.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// ValidRequestID reports whether id is safe to log and echo back.
func ValidRequestID(id string) bool {
	return id != "" && len(id) <= maxRequestIDLen && requestIDPattern.MatchString(id)
}

// NewRequestID returns a random request id.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID stores id in ctx. An invalid id is replaced by a new one.
func WithRequestID(ctx context.Context, id string) context.Context {
	if !ValidRequestID(id) {
		id = NewRequestID()
	}
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return id
	}
	return ""
}


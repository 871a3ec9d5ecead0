package context

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext carries the correlation ids of one request; logger.FromContext
// attaches them to every log line.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, t *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, t)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// NewTraceContext builds the ids for a request. An active OpenTelemetry span
// wins over the inbound trace id; empty ids are generated.
func NewTraceContext(ctx context.Context, requestID, traceID string) *TraceContext {
	t := &TraceContext{RequestID: requestID, TraceID: traceID}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		t.TraceID = sc.TraceID().String()
		t.SpanID = sc.SpanID().String()
	}
	if t.RequestID == "" {
		t.RequestID = uuid.NewString()
	}
	if t.TraceID == "" {
		t.TraceID = hexID()
	}
	if t.SpanID == "" {
		t.SpanID = hexID()[:16]
	}
	return t
}

func hexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTraceContext_GeneratesMissingIDs(t *testing.T) {
	tc := NewTraceContext(context.Background(), "", "")
	assert.NotEmpty(t, tc.RequestID)
	assert.Len(t, tc.TraceID, 32)
	assert.Len(t, tc.SpanID, 16)
}

func TestNewTraceContext_KeepsInboundIDs(t *testing.T) {
	tc := NewTraceContext(context.Background(), "req-1", "trace-1")
	assert.Equal(t, "req-1", tc.RequestID)
	assert.Equal(t, "trace-1", tc.TraceID)
}

func TestNewTraceContext_PrefersActiveSpan(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:  trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tc := NewTraceContext(ctx, "req-1", "inbound")
	assert.Equal(t, sc.TraceID().String(), tc.TraceID)
	assert.Equal(t, sc.SpanID().String(), tc.SpanID)

	got := GetTrace(WithTrace(ctx, tc))
	require.NotNil(t, got)
	assert.Equal(t, "req-1", got.RequestID)
}

func TestGetTrace_Missing(t *testing.T) {
	assert.Nil(t, GetTrace(context.Background()))
}

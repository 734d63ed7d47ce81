// Package telemetry is the ambient logging/metrics/tracing facade (spec.md
// C11). Grounded in idiom on runtime/agent/telemetry/clue.go's
// Logger/Metrics/Tracer split, without goa.design/clue/log (a Goa-specific
// logging shim, dropped per DESIGN.md). The package declares the Logger,
// Metrics and Tracer interfaces (spans use go.opentelemetry.io/otel types)
// and a no-op implementation of each; it has no zap- or Prometheus-backed
// implementation.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger emits structured log messages keyed by alternating (key, value)
// pairs, mirroring the teacher's keyvals convention.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters, timers, and gauges tagged by alternating
// (key, value) string pairs.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, d time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Span is a single unit of tracing work.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Tracer starts and retrieves spans.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// LLMCallRecord is one structured log line per planner model invocation,
// grounded on original_source's llm_call_logger.py: every call is logged
// with enough fields to reconstruct cost and latency without replaying the
// conversation.
type LLMCallRecord struct {
	AgentExecutionID string
	LoopIndex        int
	Model            string
	PromptTokens     int
	CompletionTokens int
	DurationMs       int64
	StopReason       string
	Error            string
}

// LogLLMCall emits an LLMCallRecord through l at info level (or warn if
// Error is set), matching the teacher's convention of folding structured
// payloads into keyvals rather than defining a bespoke log method per
// record type.
func LogLLMCall(ctx context.Context, l Logger, rec LLMCallRecord) {
	keyvals := []any{
		"agent_execution_id", rec.AgentExecutionID,
		"loop_index", rec.LoopIndex,
		"model", rec.Model,
		"prompt_tokens", rec.PromptTokens,
		"completion_tokens", rec.CompletionTokens,
		"duration_ms", rec.DurationMs,
		"stop_reason", rec.StopReason,
	}
	if rec.Error != "" {
		l.Warn(ctx, "llm_call", append(keyvals, "error", rec.Error)...)
		return
	}
	l.Info(ctx, "llm_call", keyvals...)
}

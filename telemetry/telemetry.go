// Package telemetry abstracts the structured logging, metrics, and tracing
// interfaces so kernel/bridge/hooks/session/replay/debug depend on a small
// seam instead of any concrete backend. Callers inject a Logger/Metrics/
// Tracer (typically the clue/otel-backed implementations in clue.go) via
// functional options; components default to the no-op implementations in
// noop.go when none is supplied.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger emits structured log messages carrying a context (the active
// request/session) and a flat list of key-value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters, timers, and gauges. tags are flattened
// key-value pairs used as metric dimensions.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer starts spans and recovers the span active on a context.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span is the subset of an OTEL span this module's components use.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

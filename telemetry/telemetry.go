// Package telemetry defines the logging, metrics, and tracing interfaces
// used throughout the agent execution core. Components that emit telemetry
// accept these via constructor injection rather than reaching for a
// package-level singleton (the cacheboundary tracker and the plan types
// take none), so a session, a subagent view, and a test harness can each
// wire their own telemetry without cross-talk.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits leveled, contextual log messages. Implementations should
	// treat the key/value pairs in args as structured fields, not a format
	// string's positional arguments.
	Logger interface {
		Debug(ctx context.Context, msg string, args ...any)
		Info(ctx context.Context, msg string, args ...any)
		Warn(ctx context.Context, msg string, args ...any)
		Error(ctx context.Context, msg string, args ...any)
	}

	// Metrics records counters, timers, and gauges. Tags are passed as
	// alternating key/value strings, matching the teacher's call sites.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, d time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer starts spans. Start returns a context carrying the new span so
	// callers can thread it into nested calls.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	}

	// Span is a single unit of tracing work bounded by Start/End.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}

	// Bundle groups the three telemetry facets so component constructors
	// can take a single argument instead of three.
	Bundle struct {
		Logger  Logger
		Metrics Metrics
		Tracer  Tracer
	}
)

// Noop returns a Bundle whose facets discard everything. Useful for tests
// and for embedding the core into hosts that don't want telemetry wired.
func Noop() Bundle {
	return Bundle{Logger: NewNoopLogger(), Metrics: NewNoopMetrics(), Tracer: NewNoopTracer()}
}

// orDefault fills in no-op facets for any zero fields, so partially
// constructed bundles never nil-panic inside a component.
func (b Bundle) orDefault() Bundle {
	if b.Logger == nil {
		b.Logger = NewNoopLogger()
	}
	if b.Metrics == nil {
		b.Metrics = NewNoopMetrics()
	}
	if b.Tracer == nil {
		b.Tracer = NewNoopTracer()
	}
	return b
}

// WithDefaults returns b with any missing facet replaced by a no-op. Components
// should call this once in their constructor rather than nil-checking on
// every call site.
func WithDefaults(b Bundle) Bundle {
	return b.orDefault()
}

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	clue "goa.design/clue/log"
)

type (
	// ClueLogger delegates to goa.design/clue/log, reading formatting and
	// debug settings from the context the way the rest of the clue
	// ecosystem expects (clue.Context / clue.WithDebug).
	ClueLogger struct{}

	// OtelMetrics records counters/timers/gauges through an OpenTelemetry
	// meter. Instruments are created lazily and cached by name.
	OtelMetrics struct {
		meter      metric.Meter
		counters   map[string]metric.Float64Counter
		histograms map[string]metric.Float64Histogram
		gauges     map[string]metric.Float64Gauge
	}

	// OtelTracer creates spans through an OpenTelemetry tracer.
	OtelTracer struct {
		tracer trace.Tracer
	}

	otelSpan struct {
		span trace.Span
	}
)

// NewClueLogger constructs a Logger that delegates to goa.design/clue/log.
func NewClueLogger() Logger { return ClueLogger{} }

func (ClueLogger) Debug(ctx context.Context, msg string, args ...any) {
	clue.Debug(ctx, msg, toClueFields(args)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, args ...any) {
	clue.Info(ctx, msg, toClueFields(args)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, args ...any) {
	clue.Print(ctx, msg, toClueFields(args)...)
}

func (ClueLogger) Error(ctx context.Context, msg string, args ...any) {
	clue.Error(ctx, msg, toClueFields(args)...)
}

func toClueFields(args []any) []clue.KV {
	fields := make([]clue.KV, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		fields = append(fields, clue.KV{K: key, V: fmt.Sprint(args[i+1])})
	}
	return fields
}

// NewOtelMetrics constructs a Metrics recorder bound to the given meter
// (typically otel.Meter("agentcore")).
func NewOtelMetrics(meter metric.Meter) Metrics {
	return &OtelMetrics{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

func (m *OtelMetrics) IncCounter(name string, value float64, tags ...string) {
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Float64Counter(name)
		if err != nil {
			return
		}
		m.counters[name] = c
	}
	c.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OtelMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	h, ok := m.histograms[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name, metric.WithUnit("ms"))
		if err != nil {
			return
		}
		m.histograms[name] = h
	}
	h.Record(context.Background(), float64(d.Milliseconds()), metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OtelMetrics) RecordGauge(name string, value float64, tags ...string) {
	g, ok := m.gauges[name]
	if !ok {
		var err error
		g, err = m.meter.Float64Gauge(name)
		if err != nil {
			return
		}
		m.gauges[name] = g
	}
	g.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

// NewOtelTracer constructs a Tracer bound to the given OTel tracer
// (typically otel.Tracer("agentcore")).
func NewOtelTracer(tracer trace.Tracer) Tracer {
	return OtelTracer{tracer: tracer}
}

// DefaultTracer returns a Tracer bound to the global OTel tracer provider
// under the "agentcore" instrumentation name.
func DefaultTracer() Tracer {
	return NewOtelTracer(otel.Tracer("agentcore"))
}

func (t OtelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, otelSpan{span: span}
}

func (s otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s otelSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(tagsToAttrs(toStrings(attrs))...))
}

func (s otelSpan) SetStatus(code codes.Code, description string) { s.span.SetStatus(code, description) }

func (s otelSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }

func toStrings(args []any) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		out = append(out, fmt.Sprint(a))
	}
	return out
}

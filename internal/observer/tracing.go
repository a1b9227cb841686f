package observer

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig toggles and names the daemon's tracer (mirrors the
// Enabled-gated provider construction the teacher's tracing packages
// use, minus the OTLP exporter this pack's dependency set doesn't
// carry).
type TraceConfig struct {
	Enabled     bool
	ServiceName string
}

// NewTracerProvider builds a TracerProvider. When cfg.Enabled is false it
// returns the otel no-op provider, so span calls everywhere else in the
// daemon are always safe, zero-cost no-ops by default. When enabled,
// spans are exported through slogSpanExporter onto logger, since this
// pack's dependency set has otel's SDK but no OTLP exporter.
func NewTracerProvider(cfg TraceConfig, logger *slog.Logger) (trace.TracerProvider, func(context.Context) error) {
	if !cfg.Enabled {
		return otel.GetTracerProvider(), func(context.Context) error { return nil }
	}
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ServiceName
	if name == "" {
		name = "nexusd"
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&slogSpanExporter{logger: logger.With("component", "tracing")}),
	)
	return tp, tp.Shutdown
}

// Tracer wraps the handful of spans the daemon can emit: one per scheduler
// tick, one per LLM call, one per MCP round trip, one per tool dispatch
// (spec §4.7, §4.4, §4.3). fsmengine starts the tick and LLM-call spans;
// StartMCPCall and StartToolDispatch have no caller in the daemon.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps a TracerProvider's named tracer.
func NewTracer(provider trace.TracerProvider, name string) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(name)}
}

// StartTick spans one fsmengine tick for sessionID.
func (t *Tracer) StartTick(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "fsm.tick", trace.WithAttributes(attribute.String("session.id", sessionID)))
}

// StartLLMCall spans one provider.CreateChatCompletion call.
func (t *Tracer) StartLLMCall(ctx context.Context, sessionID, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("llm.model", model),
	))
}

// StartMCPCall spans one MCP JSON-RPC round trip.
func (t *Tracer) StartMCPCall(ctx context.Context, server, method string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "mcp.call", trace.WithAttributes(
		attribute.String("mcp.server", server),
		attribute.String("mcp.method", method),
	))
}

// StartToolDispatch spans one toolkit.Dispatcher.Dispatch call.
func (t *Tracer) StartToolDispatch(ctx context.Context, sessionID, tool string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "tool.dispatch", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("tool.name", tool),
	))
}

// slogSpanExporter satisfies sdktrace.SpanExporter by logging each
// finished span's name, duration, and attributes. It exists because this
// pack's dependency set includes go.opentelemetry.io/otel/sdk but no
// OTLP exporter package.
type slogSpanExporter struct {
	logger *slog.Logger
}

func (e *slogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := make([]any, 0, len(s.Attributes())*2+4)
		attrs = append(attrs, "span", s.Name(), "duration", s.EndTime().Sub(s.StartTime()))
		for _, kv := range s.Attributes() {
			attrs = append(attrs, string(kv.Key), kv.Value.Emit())
		}
		e.logger.Debug("span finished", attrs...)
	}
	return nil
}

func (e *slogSpanExporter) Shutdown(context.Context) error { return nil }

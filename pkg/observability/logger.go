package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrEnv     = "env"
	attrMode    = "mode"

	attrGrammar    = "grammar"
	attrGeneration = "generation"
)

type (
	grammarKey    struct{}
	generationKey struct{}
)

// WithGrammar tags ctx with the grammar whose parser handles the work.
func WithGrammar(ctx context.Context, grammar string) context.Context {
	return context.WithValue(ctx, grammarKey{}, grammar)
}

// WithGeneration tags ctx with the edit generation being parsed.
func WithGeneration(ctx context.Context, generation uint64) context.Context {
	return context.WithValue(ctx, generationKey{}, generation)
}

// GenerationFrom returns the generation ctx was tagged with.
func GenerationFrom(ctx context.Context) (uint64, bool) {
	generation, ok := ctx.Value(generationKey{}).(uint64)

	return generation, ok
}

// TracingHandler is an [slog.Handler] that stamps every record with the
// OpenTelemetry trace context, the grammar and generation of the parse the
// context belongs to, and service metadata.
// Service attributes (service, env, mode) are pre-attached at construction
// so they remain at the top level even when groups are used.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler wraps an [slog.Handler], injecting trace context and service metadata.
// Service attributes are pre-attached to the inner handler so they appear at the
// top level regardless of subsequent WithGroup calls.
func NewTracingHandler(inner slog.Handler, service, env string, appMode AppMode) *TracingHandler {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(appMode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return &TracingHandler{
		inner: inner.WithAttrs(attrs),
	}
}

// Enabled delegates to the inner handler.
func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.inner.Enabled(ctx, level)
}

// Handle adds trace context and parse attributes from ctx, then delegates.
func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	if grammar, ok := ctx.Value(grammarKey{}).(string); ok {
		record.AddAttrs(slog.String(attrGrammar, grammar))
	}

	if generation, ok := GenerationFrom(ctx); ok {
		record.AddAttrs(slog.Uint64(attrGeneration, generation))
	}

	err := th.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

// WithAttrs returns a new TracingHandler with additional attributes on the inner handler.
func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{
		inner: th.inner.WithAttrs(attrs),
	}
}

// WithGroup returns a new TracingHandler with a group prefix on the inner handler.
func (th *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{
		inner: th.inner.WithGroup(name),
	}
}

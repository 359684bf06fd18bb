package vectorindex

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// InstrumentationName identifies this package's tracer.
const InstrumentationName = "github.com/fyrsmithlabs/vectorindex/internal/vectorindex"

// TraceObserver opens one span per operation and records retries and
// rollbacks as span events.
type TraceObserver struct {
	tracer trace.Tracer
}

// NewTraceObserver uses tp, or the global provider when tp is nil.
func NewTraceObserver(tp trace.TracerProvider) *TraceObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TraceObserver{tracer: tp.Tracer(InstrumentationName)}
}

func (o *TraceObserver) RequestIssued(ctx context.Context, op Operation, table string) context.Context {
	ctx, _ = o.tracer.Start(ctx, "vectorindex."+string(op),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("vectorindex.operation", string(op)),
			attribute.String("vectorindex.table", table),
		),
	)
	return ctx
}

func (o *TraceObserver) RetryAttempted(ctx context.Context, _ Operation, attempt int, delay time.Duration, err error) {
	trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.String("backoff", delay.String()),
		attribute.String("error", err.Error()),
	))
}

func (o *TraceObserver) BatchRolledBack(ctx context.Context, _ Operation, _ string, size int, err error) {
	trace.SpanFromContext(ctx).AddEvent("rollback", trace.WithAttributes(
		attribute.Int("batch.size", size),
		attribute.String("error", err.Error()),
	))
}

func (o *TraceObserver) OperationFinished(ctx context.Context, _ Operation, _ string, _ time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.kind", string(vecerr.KindOf(err))))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

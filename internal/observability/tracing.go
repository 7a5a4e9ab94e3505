package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	runTracerName = "photomigrate"
	dbTracerName  = "photomigrate/db"
)

type contextKey string

const (
	runIDContextKey contextKey = "observability.run_id"
	rowContextKey   contextKey = "observability.row"
)

// RowRef identifies the input row a context is processing.
type RowRef struct {
	Line       int
	Identifier string
}

// Span is the application-level tracing span contract.
type Span interface {
	End()
	RecordError(error)
	SetAttributes(...attribute.KeyValue)
}

type otelSpan struct {
	inner trace.Span
}

// WithRunID tags the context with the current run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDContextKey, runID)
}

// RunIDFromContext extracts the run id.
func RunIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(runIDContextKey).(string)
	return value, ok && value != ""
}

// WithRow tags the context with the row being processed.
func WithRow(ctx context.Context, line int, identifier string) context.Context {
	return context.WithValue(ctx, rowContextKey, RowRef{Line: line, Identifier: strings.TrimSpace(identifier)})
}

// RowFromContext extracts the row reference.
func RowFromContext(ctx context.Context) (RowRef, bool) {
	value, ok := ctx.Value(rowContextKey).(RowRef)
	return value, ok && value.Line > 0
}

// StartRunSpan starts the root span of a batch run.
func StartRunSpan(ctx context.Context, runID string) (context.Context, Span) {
	ctx = WithRunID(ctx, runID)
	ctx, span := otel.Tracer(runTracerName).Start(ctx, "photomigrate.run",
		trace.WithAttributes(attribute.String("photomigrate.run_id", runID)),
	)
	return ctx, otelSpan{inner: span}
}

// StartIndexSpan starts the span covering the CRM index query.
func StartIndexSpan(ctx context.Context, object string, limit int) (context.Context, Span) {
	ctx, span := otel.Tracer(runTracerName).Start(ctx, "photomigrate.index",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("crm.object", object),
			attribute.Int("crm.query_limit", limit),
		),
	)
	return ctx, otelSpan{inner: span}
}

// StartRowSpan starts a span for one input row and tags the context with it.
func StartRowSpan(ctx context.Context, line int, identifier string) (context.Context, Span) {
	ctx = WithRow(ctx, line, identifier)
	ctx, span := otel.Tracer(runTracerName).Start(ctx, "photomigrate.row",
		trace.WithAttributes(
			attribute.Int("photomigrate.row", line),
			attribute.String("photomigrate.identifier", strings.TrimSpace(identifier)),
		),
	)
	return ctx, otelSpan{inner: span}
}

// StartDBSpan starts a database tracing span for one query operation.
func StartDBSpan(ctx context.Context, queryName, operation string) (context.Context, Span) {
	queryName = strings.TrimSpace(queryName)
	if queryName == "" {
		queryName = "unknown"
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.system.name", "sqlite"),
		attribute.String("db.query_name", queryName),
		attribute.String("db.operation", strings.TrimSpace(operation)),
	}
	if runID, ok := RunIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("photomigrate.run_id", runID))
	}

	ctx, span := otel.Tracer(dbTracerName).Start(ctx, "db."+queryName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, otelSpan{inner: span}
}

func (s otelSpan) End() {
	if s.inner == nil {
		return
	}
	s.inner.End()
}

func (s otelSpan) RecordError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.RecordError(err)
	s.inner.SetStatus(codes.Error, err.Error())
}

func (s otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	if s.inner == nil || len(attrs) == 0 {
		return
	}
	s.inner.SetAttributes(attrs...)
}

// Package otel holds span helpers shared by the activity and store layers.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on controller spans.
const (
	AttrConnectionID  = attribute.Key("connection.id")
	AttrWorkspaceID   = attribute.Key("workspace.id")
	AttrJobID         = attribute.Key("job.id")
	AttrAttemptNumber = attribute.Key("attempt.number")
	AttrFailureOrigin = attribute.Key("failure.origin")
	AttrFailureType   = attribute.Key("failure.type")
	AttrResultCount   = attribute.Key("result.count")
)

// JobAttributes returns the attributes identifying one attempt of a job.
// Zero IDs are omitted.
func JobAttributes(connectionID string, jobID int64, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{AttrConnectionID.String(connectionID)}
	if jobID != 0 {
		attrs = append(attrs, AttrJobID.Int64(jobID))
	}
	if attempt != 0 {
		attrs = append(attrs, AttrAttemptNumber.Int(attempt))
	}
	return attrs
}

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on the span and marks it failed.
// The status description stays generic so connection secrets never land in it;
// the error itself is kept on the span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

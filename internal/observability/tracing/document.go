package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartDocument opens the span covering one source document on its way to the
// target ledger. Outbound HTTP client spans nest under it.
func StartDocument(ctx context.Context, accountID, docType, sourceID string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName+"/pipeline").Start(ctx, "pipeline.document",
		trace.WithAttributes(SafeAttributes(
			attribute.String("account.id", accountID),
			attribute.String("document.type", docType),
			attribute.String("document.source_id", sourceID),
		)...),
	)
}

// EndDocument records the final state of the document and closes span.
func EndDocument(span trace.Span, state string, documento int64, err error) {
	span.SetAttributes(
		attribute.String("document.state", state),
		attribute.Int64("document.number", documento),
	)
	if err != nil {
		span.RecordError(SafeError(err))
		span.SetStatus(codes.Error, state)
	}
	span.End()
}

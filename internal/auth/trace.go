// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package auth

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("lawdesk/auth")

// startSpan opens the span for one credential operation. The returned func
// ends it and records err with its external class.
func startSpan(ctx context.Context, op string) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, "auth."+op,
		trace.WithAttributes(attribute.String("auth.operation", op)),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("auth.error_class", Classify(err).String()))
			span.SetStatus(codes.Error, Classify(err).String())
		}
		span.End()
	}
}

// Package logctx carries the request correlation id through context into slog.
package logctx

import (
	"context"
	"log/slog"
)

type correlationKey struct{}

const CorrelationHeader = "X-Correlation-ID"

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// From returns base annotated with the correlation id found in ctx, if any.
func From(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := CorrelationID(ctx); id != "" {
		return base.With("correlation_id", id)
	}
	return base
}

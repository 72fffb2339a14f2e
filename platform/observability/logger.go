package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// traceFields достаёт trace_id/span_id активного span-а
func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// L добавляет к base поля трассировки из ctx.
// В сервисах: observability.L(ctx, s.logger).Info(...)
func L(ctx context.Context, base *zap.Logger) *zap.Logger {
	if fields := traceFields(ctx); len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}

package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counter тонкая обёртка над Int64Counter с атрибутами-строками
type Counter struct {
	c metric.Int64Counter
}

// NewCounter регистрирует счётчик в глобальном MeterProvider.
// Если регистрация не удалась, возвращается счётчик-заглушка: метрики не должны ломать запрос.
func NewCounter(scope, name, description string) Counter {
	c, err := otel.Meter(scope).Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return Counter{}
	}
	return Counter{c: c}
}

// Inc увеличивает счётчик на 1, kv идут парами ключ/значение
func (c Counter) Inc(ctx context.Context, kv ...string) {
	if c.c == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	c.c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

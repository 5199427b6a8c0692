package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/shestoi/stockflow/internal/service"

// metrics счётчики сервисного слоя. Без настроенного MeterProvider все вызовы noop
type metrics struct {
	stockConflicts   metric.Int64Counter
	stockExhausted   metric.Int64Counter
	stockShortages   metric.Int64Counter
	orderTransitions metric.Int64Counter
	reservations     metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(meterName)
	fallback := noop.Meter{}

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	return &metrics{
		stockConflicts:   counter("stockflow.stock.version_conflicts", "Stock writes lost to a concurrent writer"),
		stockExhausted:   counter("stockflow.stock.retries_exhausted", "Stock adjustments that gave up after all attempts"),
		stockShortages:   counter("stockflow.stock.shortages", "Stock adjustments rejected for insufficient stock"),
		orderTransitions: counter("stockflow.order.transitions", "Committed order status changes"),
		reservations:     counter("stockflow.reservations", "Reservation operations"),
	}
}

func (m *metrics) transition(ctx context.Context, status string) {
	m.orderTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *metrics) reservation(ctx context.Context, op string) {
	m.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

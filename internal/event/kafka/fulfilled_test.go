package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func fulfilledOrder() repository.Order {
	return repository.Order{
		ID:     42,
		Status: repository.OrderStatusFulfilled,
		Items: []repository.OrderItem{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10.5")},
			{ProductID: 3, Quantity: 1, UnitPrice: decimal.NewFromInt(99)},
		},
	}
}

func TestFulfilledPublisher_NotifyFulfilled(t *testing.T) {
	w := &fakeWriter{}
	p := NewFulfilledPublisher(zap.NewNop(), w, "order.fulfilled")
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	p.newID = func() string { return "evt-1" }

	require.NoError(t, p.NotifyFulfilled(context.Background(), fulfilledOrder()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))

	var ev OrderFulfilledEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, OrderFulfilledEvent{
		EventID:      "evt-1",
		EventType:    EventTypeOrderFulfilled,
		EventVersion: EventVersion,
		OccurredAt:   "2026-01-02T03:04:05Z",
		OrderID:      42,
		Status:       "fulfilled",
		Items: []OrderFulfilledItem{
			{ProductID: 1, Quantity: 2, UnitPrice: "10.50"},
			{ProductID: 3, Quantity: 1, UnitPrice: "99.00"},
		},
		Total: "120.00",
	}, ev)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestFulfilledPublisher_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewFulfilledPublisher(zap.NewNop(), &fakeWriter{err: boom}, "order.fulfilled")

	err := p.NotifyFulfilled(context.Background(), fulfilledOrder())
	assert.ErrorIs(t, err, boom)
}

func TestFulfilledPublisher_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "fulfill")
	defer span.End()

	w := &fakeWriter{}
	p := NewFulfilledPublisher(zap.NewNop(), w, "order.fulfilled")
	require.NoError(t, p.NotifyFulfilled(ctx, fulfilledOrder()))

	carrier := headerCarrier{headers: &w.msgs[0].Headers}
	assert.Equal(t, EventTypeOrderFulfilled, carrier.Get("event_type"))
	assert.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
}

func TestHeaderCarrier_SetReplaces(t *testing.T) {
	var headers []kafkago.Header
	c := headerCarrier{headers: &headers}

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "3")

	assert.Equal(t, "3", c.Get("a"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
	assert.Empty(t, c.Get("missing"))
}

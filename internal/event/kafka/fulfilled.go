package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
)

const (
	// EventTypeOrderFulfilled тип события о выполненном заказе
	EventTypeOrderFulfilled = "order.fulfilled"
	// EventVersion версия схемы события
	EventVersion = 1
)

// MessageWriter минимальный интерфейс kafka writer'а
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// OrderFulfilledEvent payload события order.fulfilled
type OrderFulfilledEvent struct {
	EventID      string               `json:"event_id"`
	EventType    string               `json:"event_type"`
	EventVersion int                  `json:"event_version"`
	OccurredAt   string               `json:"occurred_at"`
	OrderID      int64                `json:"order_id"`
	Status       string               `json:"status"`
	Items        []OrderFulfilledItem `json:"items"`
	Total        string               `json:"total"`
}

// OrderFulfilledItem позиция заказа в событии
type OrderFulfilledItem struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// FulfilledPublisher реализует service.Notifier публикацией в Kafka
type FulfilledPublisher struct {
	logger *zap.Logger
	writer MessageWriter
	topic  string

	now   func() time.Time
	newID func() string
}

// NewFulfilledPublisher создаёт publisher событий order.fulfilled
func NewFulfilledPublisher(logger *zap.Logger, writer MessageWriter, topic string) *FulfilledPublisher {
	return &FulfilledPublisher{
		logger: logger,
		writer: writer,
		topic:  topic,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
}

// Close закрывает Kafka writer
func (p *FulfilledPublisher) Close() error {
	return p.writer.Close()
}

// NotifyFulfilled публикует событие о выполненном заказе, ключ сообщения - ID заказа
func (p *FulfilledPublisher) NotifyFulfilled(ctx context.Context, order repository.Order) error {
	event := p.event(order)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", EventTypeOrderFulfilled, err)
	}

	msg := kafkago.Message{
		Key:   []byte(strconv.FormatInt(order.ID, 10)),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventTypeOrderFulfilled)},
		},
	}
	// trace context уходит вместе с событием
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &msg.Headers})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish order fulfilled event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.Int64("order_id", order.ID),
		)
		return fmt.Errorf("publish %s event: %w", EventTypeOrderFulfilled, err)
	}

	p.logger.Info("order fulfilled event published",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.Int64("order_id", order.ID),
	)
	return nil
}

func (p *FulfilledPublisher) event(order repository.Order) OrderFulfilledEvent {
	items := make([]OrderFulfilledItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, OrderFulfilledItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
		})
	}
	return OrderFulfilledEvent{
		EventID:      p.newID(),
		EventType:    EventTypeOrderFulfilled,
		EventVersion: EventVersion,
		OccurredAt:   p.now().Format(time.RFC3339),
		OrderID:      order.ID,
		Status:       string(order.Status),
		Items:        items,
		Total:        order.Total().StringFixed(2),
	}
}

package log

import (
	"context"

	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
	"github.com/shestoi/stockflow/platform/observability"
)

// Notifier реализует service.Notifier записью в лог
type Notifier struct {
	logger *zap.Logger
}

// NewNotifier создаёт Notifier поверх logger
func NewNotifier(logger *zap.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// NotifyFulfilled пишет в лог сообщение о выполненном заказе
func (n *Notifier) NotifyFulfilled(ctx context.Context, order repository.Order) error {
	observability.L(ctx, n.logger).Info("order fulfilled notification",
		zap.Int64("order_id", order.ID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.Total().StringFixed(2)),
	)
	return nil
}

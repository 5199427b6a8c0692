package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
)

// OrderService ведёт заказ по машине состояний
// pending_fulfillment -> fulfilled | canceled, из терминальных статусов переходов нет
// Статус меняется только через Update с проверкой версии, сам сервис конфликт не повторяет
type OrderService struct {
	orders       repository.OrderRepository
	products     repository.ProductRepository
	ledger       *Ledger
	reservations *ReservationManager
	notifier     Notifier
	logger       *zap.Logger
	metrics      *metrics

	now func() time.Time
}

// NewOrderService создаёт OrderService
func NewOrderService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	ledger *Ledger,
	reservations *ReservationManager,
	notifier Notifier,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orders:       orders,
		products:     products,
		ledger:       ledger,
		reservations: reservations,
		notifier:     notifier,
		logger:       logger,
		metrics:      newMetrics(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// placement копит выполненные шаги оформления для отката
type placement struct {
	debited []stockDebit
	taken   []repository.Reservation
	// surplus возвращается на склад только после сохранения заказа
	surplus []stockDebit
}

type stockDebit struct {
	productID int64
	quantity  int
}

// PlaceOrder оформляет заказ целиком или не оформляет вовсе
// Позиция с резервом текущей сессии не списывается повторно, остальные списываются через Ledger
// При любой ошибке списания возвращаются, а забранные резервы кладутся обратно
func (s *OrderService) PlaceOrder(ctx context.Context, items []repository.OrderItem) (repository.Order, error) {
	const op = "service.OrderService.PlaceOrder"

	if err := validateItems(items); err != nil {
		return repository.Order{}, err
	}

	var pl placement
	placed := make([]repository.OrderItem, 0, len(items))

	for i, item := range items {
		priced, err := s.applyItem(ctx, &pl, item)
		if err != nil {
			return repository.Order{}, s.rollback(ctx, pl, fmt.Errorf("item %d: %w", i, err))
		}
		placed = append(placed, priced)
	}

	order, err := s.orders.Add(ctx, repository.Order{
		CreatedAt: s.now(),
		Status:    repository.OrderStatusPendingFulfillment,
		Items:     placed,
	})
	if err != nil {
		return repository.Order{}, s.rollback(ctx, pl, fmt.Errorf("%s: save order: %w", op, err))
	}

	// заказ сохранён, излишек резервов больше никому не нужен
	for _, extra := range pl.surplus {
		if _, err := s.ledger.restore(ctx, extra.productID, extra.quantity); err != nil {
			s.logger.Error("reservation surplus not returned to stock",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", extra.productID),
				zap.Int("quantity", extra.quantity),
				zap.Error(err))
		}
	}

	s.metrics.transition(ctx, string(repository.OrderStatusPendingFulfillment))
	s.logger.Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.Int("items", len(order.Items)),
		zap.Int("reservations_used", len(pl.taken)))
	return order, nil
}

// applyItem списывает остаток одной позиции и определяет её цену
func (s *OrderService) applyItem(ctx context.Context, pl *placement, item repository.OrderItem) (repository.OrderItem, error) {
	price := item.UnitPrice
	applied := false

	if item.ReservationID != "" {
		res, ok, err := s.reservations.consume(ctx, item.ReservationID)
		if err != nil {
			return item, err
		}
		if ok {
			pl.taken = append(pl.taken, res)
			if res.ProductID != item.ProductID {
				return item, fmt.Errorf("%w: reservation %s is for product %d, not %d",
					ErrInvalidOrder, res.ID, res.ProductID, item.ProductID)
			}
			// резерв уже списан, дотягиваем только недостающее
			switch diff := item.Quantity - res.Quantity; {
			case diff > 0:
				if _, err := s.ledger.AdjustStock(ctx, item.ProductID, diff); err != nil {
					var shortage *InsufficientStockError
					if errors.As(err, &shortage) {
						// нехватка считается на всю позицию, резерв входит в доступное
						return item, &InsufficientStockError{
							ProductID: item.ProductID,
							Requested: item.Quantity,
							Available: shortage.Available + res.Quantity,
						}
					}
					return item, err
				}
				pl.debited = append(pl.debited, stockDebit{productID: item.ProductID, quantity: diff})
			case diff < 0:
				pl.surplus = append(pl.surplus, stockDebit{productID: item.ProductID, quantity: -diff})
			}
			if !price.IsPositive() {
				price = res.UnitPrice
			}
			applied = true
		}
	}

	if !applied {
		if _, err := s.ledger.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
			return item, err
		}
		pl.debited = append(pl.debited, stockDebit{productID: item.ProductID, quantity: item.Quantity})
	}

	if !price.IsPositive() {
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return item, &ProductNotFoundError{ProductID: item.ProductID}
			}
			return item, fmt.Errorf("get product %d: %w", item.ProductID, err)
		}
		price = product.Price
	}

	return repository.OrderItem{
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		UnitPrice: price,
	}, nil
}

// rollback отменяет выполненные шаги в обратном порядке и возвращает cause
// вместе с ошибками отката. Откат только возвращает остаток и резервы,
// повторных списаний в нём нет
func (s *OrderService) rollback(ctx context.Context, pl placement, cause error) error {
	// откат должен пройти и после отмены запроса
	ctx = context.WithoutCancel(ctx)

	var errs error
	for i := len(pl.debited) - 1; i >= 0; i-- {
		debit := pl.debited[i]
		if _, err := s.ledger.restore(ctx, debit.productID, debit.quantity); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rollback stock for product %d: %w", debit.productID, err))
		}
	}
	for _, res := range pl.taken {
		if err := s.reservations.putBack(ctx, res); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		s.logger.Error("order placement rollback incomplete", zap.Error(errs), zap.NamedError("cause", cause))
	}
	return multierr.Append(cause, errs)
}

// CancelOrder отменяет заказ и возвращает его позиции на склад
// Повторная отмена ничего не делает. Выполненный заказ отменить нельзя
// Статус фиксируется до возврата остатков: проигравший гонку отменяющий ничего не возвращает
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64) (repository.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return repository.Order{}, err
	}

	switch order.Status {
	case repository.OrderStatusCanceled:
		return order, nil
	case repository.OrderStatusPendingFulfillment:
	default:
		return repository.Order{}, &InvalidTransitionError{
			OrderID:   orderID,
			Current:   order.Status,
			Attempted: repository.OrderStatusCanceled,
		}
	}

	updated, err := s.transition(ctx, order, repository.OrderStatusCanceled)
	if err != nil {
		return repository.Order{}, err
	}

	// статус уже зафиксирован, повторная отмена ничего не вернёт:
	// возврат повторяет конфликты версий до успеха
	var errs error
	for _, item := range updated.Items {
		if _, err := s.ledger.restore(ctx, item.ProductID, item.Quantity); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("restore product %d: %w", item.ProductID, err))
		}
	}
	if errs != nil {
		s.logger.Error("canceled order stock not fully restored",
			zap.Int64("order_id", orderID), zap.Error(errs))
		return updated, fmt.Errorf("cancel order %d: %w", orderID, errs)
	}

	s.logger.Info("order canceled", zap.Int64("order_id", orderID))
	return updated, nil
}

// FulfillOrder переводит заказ в fulfilled и уведомляет Notifier
// Остатки не трогаются: они списаны при оформлении
// Ошибка уведомления возвращается как *NotificationError, статус при этом остаётся fulfilled
func (s *OrderService) FulfillOrder(ctx context.Context, orderID int64) (repository.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return repository.Order{}, err
	}

	if order.Status != repository.OrderStatusPendingFulfillment {
		return repository.Order{}, &InvalidTransitionError{
			OrderID:   orderID,
			Current:   order.Status,
			Attempted: repository.OrderStatusFulfilled,
		}
	}

	updated, err := s.transition(ctx, order, repository.OrderStatusFulfilled)
	if err != nil {
		return repository.Order{}, err
	}
	s.logger.Info("order fulfilled", zap.Int64("order_id", orderID))

	if err := s.notifier.NotifyFulfilled(ctx, updated); err != nil {
		return updated, &NotificationError{OrderID: orderID, Err: err}
	}
	return updated, nil
}

// transition фиксирует новый статус с проверкой версии
func (s *OrderService) transition(ctx context.Context, order repository.Order, to repository.OrderStatus) (repository.Order, error) {
	order.Status = to
	updated, err := s.orders.Update(ctx, order)
	switch {
	case err == nil:
		s.metrics.transition(ctx, string(to))
		return updated, nil
	case errors.Is(err, repository.ErrVersionConflict):
		return repository.Order{}, &ConcurrencyConflictError{Entity: "order", EntityID: order.ID}
	case errors.Is(err, repository.ErrNotFound):
		return repository.Order{}, &OrderNotFoundError{OrderID: order.ID}
	default:
		return repository.Order{}, fmt.Errorf("update order %d: %w", order.ID, err)
	}
}

// GetOrder возвращает заказ по ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (repository.Order, error) {
	return s.getOrder(ctx, orderID)
}

func (s *OrderService) getOrder(ctx context.Context, orderID int64) (repository.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Order{}, &OrderNotFoundError{OrderID: orderID}
		}
		return repository.Order{}, fmt.Errorf("get order %d: %w", orderID, err)
	}
	return order, nil
}

// ListOrders возвращает все заказы
func (s *OrderService) ListOrders(ctx context.Context) ([]repository.Order, error) {
	orders, err := s.orders.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListOrdersByStatus возвращает заказы в статусе status
func (s *OrderService) ListOrdersByStatus(ctx context.Context, status repository.OrderStatus) ([]repository.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, status)
	}
	orders, err := s.orders.GetByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list %s orders: %w", status, err)
	}
	return orders, nil
}

func validateItems(items []repository.OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	}
	for i, item := range items {
		switch {
		case item.ProductID <= 0:
			return fmt.Errorf("%w: item %d: product id must be positive", ErrInvalidOrder, i)
		case item.Quantity < 1 || item.Quantity > MaxItemQuantity:
			return fmt.Errorf("%w: item %d: quantity must be between 1 and %d", ErrInvalidOrder, i, MaxItemQuantity)
		case item.UnitPrice.IsNegative():
			return fmt.Errorf("%w: item %d: unit price must not be negative", ErrInvalidOrder, i)
		}
	}
	return nil
}

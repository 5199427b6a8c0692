package service

import (
	"errors"
	"fmt"

	"github.com/shestoi/stockflow/internal/repository"
)

var (
	// ErrInvalidOrder некорректный запрос на заказ (пустой список, плохое количество и т.п.)
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInvalidProduct некорректные данные товара
	ErrInvalidProduct = errors.New("invalid product")
	// ErrInvalidQuantity количество вне допустимого диапазона
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrProductInUse товар нельзя удалить, на него ссылаются заказы
	ErrProductInUse = errors.New("product is referenced by orders")
	// ErrSessionRequired операция требует сессию клиента в контексте
	ErrSessionRequired = errors.New("session id is required")
)

// InsufficientStockError остатка не хватает на запрошенное количество
// Повторять автоматически бессмысленно: нужно другое количество или другой товар
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// ProductNotFoundError товар не найден
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// Is позволяет проверять errors.Is(err, repository.ErrNotFound)
func (e *ProductNotFoundError) Is(target error) bool {
	return target == repository.ErrNotFound
}

// OrderNotFoundError заказ не найден
type OrderNotFoundError struct {
	OrderID int64
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

// Is позволяет проверять errors.Is(err, repository.ErrNotFound)
func (e *OrderNotFoundError) Is(target error) bool {
	return target == repository.ErrNotFound
}

// InvalidTransitionError переход из текущего статуса запрещён
type InvalidTransitionError struct {
	OrderID   int64
	Current   repository.OrderStatus
	Attempted repository.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d: invalid transition %s -> %s", e.OrderID, e.Current, e.Attempted)
}

// ConcurrencyConflictError запись изменил конкурентный писатель
// Для товара возвращается после исчерпания повторов, для заказа сразу
type ConcurrencyConflictError struct {
	Entity   string
	EntityID int64
	Attempts int
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("concurrency conflict on %s %d after %d attempts", e.Entity, e.EntityID, e.Attempts)
	}
	return fmt.Sprintf("concurrency conflict on %s %d", e.Entity, e.EntityID)
}

// Unwrap даёт errors.Is(err, repository.ErrVersionConflict)
func (e *ConcurrencyConflictError) Unwrap() error {
	return repository.ErrVersionConflict
}

// NotificationError уведомление о выполнении не доставлено
// Статус заказа к этому моменту уже зафиксирован
type NotificationError struct {
	OrderID int64
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify order %d fulfilled: %v", e.OrderID, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus представляет состояние заказа
type OrderStatus string

const (
	// OrderStatusPendingFulfillment - начальное состояние, заказ ждёт выполнения
	OrderStatusPendingFulfillment OrderStatus = "pending_fulfillment"
	// OrderStatusFulfilled - заказ выполнен (терминальное состояние)
	OrderStatusFulfilled OrderStatus = "fulfilled"
	// OrderStatusCanceled - заказ отменён (терминальное состояние)
	OrderStatusCanceled OrderStatus = "canceled"
)

// IsTerminal сообщает, что из статуса больше нет переходов
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFulfilled || s == OrderStatusCanceled
}

// Valid проверяет, что статус входит в известный набор
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingFulfillment, OrderStatusFulfilled, OrderStatusCanceled:
		return true
	}
	return false
}

// Product представляет товар каталога вместе с остатком на складе
// Version - монотонный счётчик для optimistic concurrency, увеличивается при каждой записи
type Product struct {
	ID            int64
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	Version       int64
	UpdatedAt     time.Time
}

// Order представляет доменную модель заказа
// Это бизнес-сущность, не привязанная к HTTP или БД
type Order struct {
	ID        int64
	CreatedAt time.Time
	Status    OrderStatus
	Items     []OrderItem
	Version   int64
	UpdatedAt time.Time
}

// Total сумма заказа по зафиксированным ценам позиций
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// OrderItem представляет товар в заказе
// UnitPrice фиксируется в момент оформления и дальше не зависит от цены товара
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal

	// ReservationID приходит только с запросом на оформление и не сохраняется
	ReservationID string
}

// Reservation - временное удержание остатка в рамках сессии клиента
// Отражает уже применённое списание: сам остаток в хранилище к этому моменту уменьшен
type Reservation struct {
	ID        string
	SessionID string
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=ProductRepository --dir=. --output=./mocks --outpkg=mocks

// ProductRepository определяет интерфейс для работы с хранилищем товаров
// Service слой зависит от этого интерфейса, а не от конкретной реализации
type ProductRepository interface {
	// GetByID получает товар по ID
	// Возвращает ErrNotFound, если товар не найден
	GetByID(ctx context.Context, id int64) (Product, error)

	// GetAll возвращает все товары, отсортированные по ID
	GetAll(ctx context.Context) ([]Product, error)

	// Add сохраняет новый товар и возвращает его с присвоенными ID и версией
	Add(ctx context.Context, product Product) (Product, error)

	// Update меняет имя и цену товара, если версия в хранилище совпадает с product.Version
	// Остаток не меняет. Возвращает ErrVersionConflict или ErrNotFound
	Update(ctx context.Context, product Product) (Product, error)

	// Delete удаляет товар. Возвращает ErrNotFound, если товара нет
	Delete(ctx context.Context, id int64) error

	// CheckStock возвращает true, если остаток >= quantity (false для неизвестного товара)
	CheckStock(ctx context.Context, id int64, quantity int) (bool, error)

	// AdjustStock выполняет одну транзакционную попытку stock -= delta:
	// читает строку с версией, проверяет остаток и пишет с проверкой версии.
	// Возвращает ErrNotFound, *StockShortageError или ErrVersionConflict
	AdjustStock(ctx context.Context, id int64, delta int) (int, error)
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=OrderRepository --dir=. --output=./mocks --outpkg=mocks

// OrderRepository определяет интерфейс для работы с хранилищем заказов
type OrderRepository interface {
	// GetAll возвращает все заказы с позициями
	GetAll(ctx context.Context) ([]Order, error)

	// GetByID получает заказ по ID
	// Возвращает ErrNotFound, если заказ не найден
	GetByID(ctx context.Context, id int64) (Order, error)

	// Add сохраняет новый заказ вместе с позициями атомарно
	Add(ctx context.Context, order Order) (Order, error)

	// Update сохраняет статус заказа, если версия в хранилище совпадает с order.Version
	// Возвращает заказ с новой версией, ErrVersionConflict или ErrNotFound
	Update(ctx context.Context, order Order) (Order, error)

	// GetByStatus возвращает заказы в указанном статусе в порядке создания
	GetByStatus(ctx context.Context, status OrderStatus) ([]Order, error)

	// HasProduct сообщает, есть ли заказы с позицией по этому товару
	HasProduct(ctx context.Context, productID int64) (bool, error)
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=ReservationStore --dir=. --output=./mocks --outpkg=mocks

// ReservationStore хранит резервы клиента, сгруппированные по сессии
type ReservationStore interface {
	// Insert сохраняет резерв в сессии reservation.SessionID
	Insert(ctx context.Context, reservation Reservation) error

	// Get возвращает резерв сессии. ErrNotFound, если его нет
	Get(ctx context.Context, sessionID, reservationID string) (Reservation, error)

	// Take атомарно находит и удаляет резерв. Из нескольких конкурентных вызовов
	// резерв получает только один, остальные получают ErrNotFound
	Take(ctx context.Context, sessionID, reservationID string) (Reservation, error)

	// ListCreatedBefore возвращает резервы всех сессий, созданные раньше cutoff
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]Reservation, error)
}

var (
	// ErrNotFound возвращается, когда сущность не найдена в хранилище
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict возвращается, когда запись изменил конкурентный писатель
	ErrVersionConflict = errors.New("version conflict")
)

// StockShortageError возвращается из AdjustStock, когда остаток ушёл бы в минус
type StockShortageError struct {
	Available int
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("stock shortage: available %d", e.Available)
}

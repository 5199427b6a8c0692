package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shestoi/stockflow/internal/repository"
)

// OrderRepository реализует repository.OrderRepository в памяти
// Используется для разработки и тестирования
type OrderRepository struct {
	mu         sync.RWMutex
	orders     map[int64]repository.Order
	nextID     int64
	nextItemID int64
}

// NewOrderRepository создаёт пустое хранилище заказов
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[int64]repository.Order),
	}
}

// GetAll возвращает все заказы в порядке создания
func (r *OrderRepository) GetAll(ctx context.Context) ([]repository.Order, error) {
	return r.filter(func(repository.Order) bool { return true }), nil
}

// GetByID получает заказ по ID
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (repository.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return repository.Order{}, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

// Add сохраняет заказ и присваивает ID заказу и позициям
func (r *OrderRepository) Add(ctx context.Context, order repository.Order) (repository.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	order = cloneOrder(order)
	order.ID = r.nextID
	order.Version = 1
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		r.nextItemID++
		order.Items[i].ID = r.nextItemID
		order.Items[i].OrderID = order.ID
		order.Items[i].ReservationID = ""
	}

	r.orders[order.ID] = order
	return cloneOrder(order), nil
}

// Update сохраняет новый статус при совпадении версии
func (r *OrderRepository) Update(ctx context.Context, order repository.Order) (repository.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return repository.Order{}, repository.ErrNotFound
	}
	if stored.Version != order.Version {
		return repository.Order{}, repository.ErrVersionConflict
	}

	stored.Status = order.Status
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	r.orders[stored.ID] = stored
	return cloneOrder(stored), nil
}

// GetByStatus возвращает заказы в статусе status в порядке создания
func (r *OrderRepository) GetByStatus(ctx context.Context, status repository.OrderStatus) ([]repository.Order, error) {
	return r.filter(func(o repository.Order) bool { return o.Status == status }), nil
}

// HasProduct сообщает, ссылается ли хоть один заказ на товар
func (r *OrderRepository) HasProduct(ctx context.Context, productID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.orders {
		for _, it := range o.Items {
			if it.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *OrderRepository) filter(keep func(repository.Order) bool) []repository.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// cloneOrder копирует позиции, чтобы вызывающий код не менял хранилище через общий slice
func cloneOrder(o repository.Order) repository.Order {
	items := make([]repository.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

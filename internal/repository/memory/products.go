package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shestoi/stockflow/internal/repository"
)

// ProductRepository реализует repository.ProductRepository в памяти
// Запись идёт по схеме "снимок под RLock, затем сравнение версии под Lock",
// поэтому конкурентные писатели получают ErrVersionConflict так же, как с БД
type ProductRepository struct {
	mu       sync.RWMutex
	products map[int64]repository.Product
	nextID   int64

	// beforeCommit вызывается между чтением снимка и записью (только для тестов)
	beforeCommit func()
}

// NewProductRepository создаёт пустое хранилище товаров
func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		products: make(map[int64]repository.Product),
	}
}

// GetByID получает товар по ID
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (repository.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return repository.Product{}, repository.ErrNotFound
	}
	return p, nil
}

// GetAll возвращает все товары по возрастанию ID
func (r *ProductRepository) GetAll(ctx context.Context) ([]repository.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Add сохраняет новый товар с версией 1
func (r *ProductRepository) Add(ctx context.Context, product repository.Product) (repository.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	product.ID = r.nextID
	product.Version = 1
	product.UpdatedAt = time.Now().UTC()
	r.products[product.ID] = product
	return product, nil
}

// Update меняет имя и цену при совпадении версии
func (r *ProductRepository) Update(ctx context.Context, product repository.Product) (repository.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.products[product.ID]
	if !ok {
		return repository.Product{}, repository.ErrNotFound
	}
	if stored.Version != product.Version {
		return repository.Product{}, repository.ErrVersionConflict
	}

	stored.Name = product.Name
	stored.Price = product.Price
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	r.products[stored.ID] = stored
	return stored, nil
}

// Delete удаляет товар
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

// CheckStock возвращает true, если остаток не меньше quantity
func (r *ProductRepository) CheckStock(ctx context.Context, id int64, quantity int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return false, nil
	}
	return p.StockQuantity >= quantity, nil
}

// AdjustStock делает одну попытку stock -= delta
func (r *ProductRepository) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Шаг 1: снимок строки вместе с версией
	r.mu.RLock()
	snapshot, ok := r.products[id]
	r.mu.RUnlock()
	if !ok {
		return 0, repository.ErrNotFound
	}

	newQty := snapshot.StockQuantity - delta
	if newQty < 0 {
		return 0, &repository.StockShortageError{Available: snapshot.StockQuantity}
	}

	if r.beforeCommit != nil {
		r.beforeCommit()
	}

	// Шаг 2: запись только если за это время никто не успел записать раньше
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.products[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if current.Version != snapshot.Version {
		return 0, repository.ErrVersionConflict
	}

	current.StockQuantity = newQty
	current.Version++
	current.UpdatedAt = time.Now().UTC()
	r.products[id] = current
	return newQty, nil
}

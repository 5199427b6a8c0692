package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shestoi/stockflow/internal/repository"
)

// OrderRepository реализует repository.OrderRepository на PostgreSQL
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository создаёт репозиторий заказов
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Add сохраняет заказ и его позиции в одной транзакции
func (r *OrderRepository) Add(ctx context.Context, order repository.Order) (repository.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return repository.Order{}, err
	}
	// Гарантируем откат транзакции в случае ошибки
	defer tx.Rollback(ctx)

	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	saved := repository.Order{Status: order.Status}
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (status, version, created_at, updated_at)
		 VALUES ($1, 1, $2, $2)
		 RETURNING id, version, created_at, updated_at`,
		string(order.Status), createdAt).Scan(&saved.ID, &saved.Version, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return repository.Order{}, fmt.Errorf("insert order: %w", err)
	}

	saved.Items = make([]repository.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		it := repository.OrderItem{
			OrderID:   saved.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4::numeric)
			 RETURNING id`,
			saved.ID, item.ProductID, item.Quantity, item.UnitPrice.String()).Scan(&it.ID)
		if err != nil {
			return repository.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		saved.Items = append(saved.Items, it)
	}

	if err := tx.Commit(ctx); err != nil {
		return repository.Order{}, err
	}
	return saved, nil
}

// GetByID получает заказ с позициями
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (repository.Order, error) {
	orders, err := r.query(ctx, `WHERE id = $1`, id)
	if err != nil {
		return repository.Order{}, err
	}
	if len(orders) == 0 {
		return repository.Order{}, repository.ErrNotFound
	}
	return orders[0], nil
}

// GetAll возвращает все заказы в порядке создания
func (r *OrderRepository) GetAll(ctx context.Context) ([]repository.Order, error) {
	return r.query(ctx, ``)
}

// GetByStatus возвращает заказы в статусе status в порядке создания
func (r *OrderRepository) GetByStatus(ctx context.Context, status repository.OrderStatus) ([]repository.Order, error) {
	return r.query(ctx, `WHERE status = $1`, string(status))
}

// Update сохраняет новый статус, если версия совпадает
func (r *OrderRepository) Update(ctx context.Context, order repository.Order) (repository.Order, error) {
	err := r.pool.QueryRow(ctx,
		`UPDATE orders
		 SET status = $1, version = version + 1, updated_at = now()
		 WHERE id = $2 AND version = $3
		 RETURNING version, updated_at`,
		string(order.Status), order.ID, order.Version).Scan(&order.Version, &order.UpdatedAt)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return repository.Order{}, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
		return repository.Order{}, err
	}
	if !exists {
		return repository.Order{}, repository.ErrNotFound
	}
	return repository.Order{}, repository.ErrVersionConflict
}

// HasProduct сообщает, есть ли позиции заказов с этим товаром
func (r *OrderRepository) HasProduct(ctx context.Context, productID int64) (bool, error) {
	var used bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM order_items WHERE product_id = $1)`, productID).Scan(&used)
	return used, err
}

// query читает заказы по условию where и подтягивает позиции одним запросом
func (r *OrderRepository) query(ctx context.Context, where string, args ...any) ([]repository.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, status, version, created_at, updated_at FROM orders `+where+` ORDER BY created_at, id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]repository.Order, 0)
	index := make(map[int64]int)
	ids := make([]int64, 0)
	for rows.Next() {
		var (
			o      repository.Order
			status string
		)
		if err := rows.Scan(&o.ID, &status, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = repository.OrderStatus(status)
		o.Items = make([]repository.OrderItem, 0)
		index[o.ID] = len(orders)
		ids = append(ids, o.ID)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price::text
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY order_id, id`,
		ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			it    repository.OrderItem
			price string
		)
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit price %q: %w", price, err)
		}
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return orders, itemRows.Err()
}

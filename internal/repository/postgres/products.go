package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shestoi/stockflow/internal/repository"
)

// ProductRepository реализует repository.ProductRepository на PostgreSQL
// Цена хранится как NUMERIC и передаётся текстом, чтобы не терять точность
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository создаёт репозиторий товаров
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, name, price::text, stock_quantity, version, updated_at`

func scanProduct(row pgx.Row) (repository.Product, error) {
	var (
		p     repository.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.StockQuantity, &p.Version, &p.UpdatedAt); err != nil {
		return repository.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return repository.Product{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Price = d
	return p, nil
}

// GetByID получает товар по ID
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (repository.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Product{}, repository.ErrNotFound
		}
		return repository.Product{}, err
	}
	return p, nil
}

// GetAll возвращает все товары по возрастанию ID
func (r *ProductRepository) GetAll(ctx context.Context) ([]repository.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]repository.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Add сохраняет новый товар
func (r *ProductRepository) Add(ctx context.Context, product repository.Product) (repository.Product, error) {
	return scanProduct(r.pool.QueryRow(ctx,
		`INSERT INTO products (name, price, stock_quantity)
		 VALUES ($1, $2::numeric, $3)
		 RETURNING `+productColumns,
		product.Name, product.Price.String(), product.StockQuantity))
}

// Update меняет имя и цену, если версия совпадает
func (r *ProductRepository) Update(ctx context.Context, product repository.Product) (repository.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`UPDATE products
		 SET name = $1, price = $2::numeric, version = version + 1, updated_at = now()
		 WHERE id = $3 AND version = $4
		 RETURNING `+productColumns,
		product.Name, product.Price.String(), product.ID, product.Version))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return repository.Product{}, err
	}
	// строка не обновилась: либо её нет, либо версия устарела
	if _, getErr := r.GetByID(ctx, product.ID); getErr != nil {
		return repository.Product{}, getErr
	}
	return repository.Product{}, repository.ErrVersionConflict
}

// Delete удаляет товар
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CheckStock возвращает true, если остаток не меньше quantity
func (r *ProductRepository) CheckStock(ctx context.Context, id int64, quantity int) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND stock_quantity >= $2)`,
		id, quantity).Scan(&ok)
	return ok, err
}

// AdjustStock выполняет одну попытку stock -= delta в отдельной транзакции
// Чтение строки, проверка и запись по версии идут в одной транзакции
func (r *ProductRepository) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	// Гарантируем откат транзакции в случае ошибки
	defer tx.Rollback(ctx)

	var stock int
	var version int64
	err = tx.QueryRow(ctx,
		`SELECT stock_quantity, version FROM products WHERE id = $1`, id).Scan(&stock, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, err
	}

	newQty := stock - delta
	if newQty < 0 {
		return 0, &repository.StockShortageError{Available: stock}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE products
		 SET stock_quantity = $1, version = version + 1, updated_at = now()
		 WHERE id = $2 AND version = $3`,
		newQty, id, version)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, repository.ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newQty, nil
}

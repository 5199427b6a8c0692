package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
)

// MaxProductNameLength ограничение на длину имени товара в символах
const MaxProductNameLength = 100

// CatalogService управляет карточками товаров
// Остаток существующего товара меняется только через Ledger
type CatalogService struct {
	products repository.ProductRepository
	orders   repository.OrderRepository
	ledger   *Ledger
	logger   *zap.Logger
}

// NewCatalogService создаёт CatalogService
func NewCatalogService(
	products repository.ProductRepository,
	orders repository.OrderRepository,
	ledger *Ledger,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		products: products,
		orders:   orders,
		ledger:   ledger,
		logger:   logger,
	}
}

// CreateProductInput данные нового товара
type CreateProductInput struct {
	Name          string
	Price         decimal.Decimal
	StockQuantity int
}

// UpdateProductInput новые имя и цена товара
// Version 0 означает "текущая версия": сервис читает её сам, запись всё равно идёт с проверкой версии
type UpdateProductInput struct {
	ID      int64
	Name    string
	Price   decimal.Decimal
	Version int64
}

// CreateProduct добавляет товар в каталог
func (s *CatalogService) CreateProduct(ctx context.Context, in CreateProductInput) (repository.Product, error) {
	name, err := validateProduct(in.Name, in.Price)
	if err != nil {
		return repository.Product{}, err
	}
	if in.StockQuantity < 0 {
		return repository.Product{}, fmt.Errorf("%w: stock quantity must not be negative", ErrInvalidProduct)
	}

	p, err := s.products.Add(ctx, repository.Product{
		Name:          name,
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
	})
	if err != nil {
		return repository.Product{}, fmt.Errorf("add product: %w", err)
	}

	s.logger.Info("product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// GetProduct возвращает товар по ID
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (repository.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Product{}, &ProductNotFoundError{ProductID: id}
		}
		return repository.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

// ListProducts возвращает весь каталог
func (s *CatalogService) ListProducts(ctx context.Context) ([]repository.Product, error) {
	products, err := s.products.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// UpdateProduct меняет имя и цену
func (s *CatalogService) UpdateProduct(ctx context.Context, in UpdateProductInput) (repository.Product, error) {
	name, err := validateProduct(in.Name, in.Price)
	if err != nil {
		return repository.Product{}, err
	}

	version := in.Version
	if version == 0 {
		current, err := s.GetProduct(ctx, in.ID)
		if err != nil {
			return repository.Product{}, err
		}
		version = current.Version
	}

	p, err := s.products.Update(ctx, repository.Product{
		ID:      in.ID,
		Name:    name,
		Price:   in.Price,
		Version: version,
	})
	switch {
	case err == nil:
		s.logger.Info("product updated", zap.Int64("product_id", p.ID), zap.Int64("version", p.Version))
		return p, nil
	case errors.Is(err, repository.ErrVersionConflict):
		return repository.Product{}, &ConcurrencyConflictError{Entity: "product", EntityID: in.ID}
	case errors.Is(err, repository.ErrNotFound):
		return repository.Product{}, &ProductNotFoundError{ProductID: in.ID}
	default:
		return repository.Product{}, fmt.Errorf("update product %d: %w", in.ID, err)
	}
}

// DeleteProduct удаляет товар, если на него не ссылается ни один заказ
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	used, err := s.orders.HasProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("check product %d usage: %w", id, err)
	}
	if used {
		return fmt.Errorf("delete product %d: %w", id, ErrProductInUse)
	}

	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &ProductNotFoundError{ProductID: id}
		}
		return fmt.Errorf("delete product %d: %w", id, err)
	}

	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

// Restock пополняет склад и возвращает новый остаток
func (s *CatalogService) Restock(ctx context.Context, id int64, quantity int) (int, error) {
	qty, err := s.ledger.Restock(ctx, id, quantity)
	if err != nil {
		return 0, err
	}
	s.logger.Info("product restocked", zap.Int64("product_id", id), zap.Int("added", quantity), zap.Int("stock", qty))
	return qty, nil
}

// SeedProducts заполняет пустой каталог демо-товарами и возвращает число добавленных
func (s *CatalogService) SeedProducts(ctx context.Context) (int, error) {
	existing, err := s.products.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list products: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	seed := []CreateProductInput{
		{Name: "Laptop", Price: decimal.NewFromInt(1200), StockQuantity: 10},
		{Name: "Smartphone", Price: decimal.NewFromInt(800), StockQuantity: 15},
		{Name: "Tablet", Price: decimal.NewFromInt(400), StockQuantity: 20},
		{Name: "Headphones", Price: decimal.NewFromInt(150), StockQuantity: 30},
	}
	for i, in := range seed {
		if _, err := s.CreateProduct(ctx, in); err != nil {
			return i, fmt.Errorf("seed %s: %w", in.Name, err)
		}
	}
	return len(seed), nil
}

func validateProduct(name string, price decimal.Decimal) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case utf8.RuneCountInString(name) > MaxProductNameLength:
		return "", fmt.Errorf("%w: name must be at most %d characters", ErrInvalidProduct, MaxProductNameLength)
	case !price.IsPositive():
		return "", fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	case !price.Equal(price.Round(2)):
		return "", fmt.Errorf("%w: price must have at most 2 decimal places", ErrInvalidProduct)
	}
	return name, nil
}

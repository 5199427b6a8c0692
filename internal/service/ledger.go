package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
)

const (
	DefaultStockAdjustMaxAttempts  = 5
	DefaultStockAdjustRetryBackoff = 5 * time.Millisecond
)

// LedgerConfig параметры повторов при конфликте версий
type LedgerConfig struct {
	// MaxAttempts общее число попыток, включая первую
	MaxAttempts int
	// RetryBackoff пауза перед n-й повторной попыткой равна RetryBackoff*n
	RetryBackoff time.Duration
	// Sleeper подменяется в тестах, по умолчанию DefaultSleeper
	Sleeper Sleeper
}

// Ledger единственный компонент, который меняет остатки товаров
// Каждая попытка это одна транзакция хранилища: чтение строки с версией,
// проверка остатка и запись с проверкой версии
type Ledger struct {
	products repository.ProductRepository
	cfg      LedgerConfig
	logger   *zap.Logger
	metrics  *metrics
}

// NewLedger создаёт Ledger. Нулевые поля cfg заменяются значениями по умолчанию
func NewLedger(products repository.ProductRepository, cfg LedgerConfig, logger *zap.Logger) *Ledger {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultStockAdjustMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultStockAdjustRetryBackoff
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = DefaultSleeper{}
	}
	return &Ledger{
		products: products,
		cfg:      cfg,
		logger:   logger,
		metrics:  newMetrics(),
	}
}

// CheckAvailable сообщает, хватает ли остатка на quantity
// Результат может устареть к моменту использования, для корректности на него не полагаются
func (l *Ledger) CheckAvailable(ctx context.Context, productID int64, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	ok, err := l.products.CheckStock(ctx, productID, quantity)
	if err != nil {
		return false, fmt.Errorf("check stock for product %d: %w", productID, err)
	}
	return ok, nil
}

// AdjustStock применяет stock -= delta и возвращает новый остаток
// delta > 0 списывает, delta < 0 возвращает на склад
// Конфликт версий повторяется до MaxAttempts раз, нехватка остатка не повторяется никогда
func (l *Ledger) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	if delta == 0 {
		return 0, fmt.Errorf("service.Ledger.AdjustStock: %w: delta must not be zero", ErrInvalidQuantity)
	}
	return l.adjust(ctx, productID, delta, l.cfg.MaxAttempts)
}

// restore возвращает quantity единиц после уже зафиксированного изменения
// (отмена заказа, откат оформления). Нехватки при возврате не бывает, поэтому
// конфликты версий повторяются до успеха и отмена ctx вызывающего не прерывает возврат
func (l *Ledger) restore(ctx context.Context, productID int64, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("service.Ledger.restore: %w: quantity must be positive, got %d", ErrInvalidQuantity, quantity)
	}
	return l.adjust(context.WithoutCancel(ctx), productID, -quantity, 0)
}

// adjust одна операция с повторами. maxAttempts 0 означает без ограничения
func (l *Ledger) adjust(ctx context.Context, productID int64, delta, maxAttempts int) (int, error) {
	const op = "service.Ledger.AdjustStock"

	attrs := metric.WithAttributes(attribute.Int64("product_id", productID))

	for attempt := 1; ; attempt++ {
		qty, err := l.products.AdjustStock(ctx, productID, delta)
		if err == nil {
			if attempt > 1 {
				l.logger.Debug("stock adjusted after retry",
					zap.Int64("product_id", productID),
					zap.Int("delta", delta),
					zap.Int("attempt", attempt))
			}
			return qty, nil
		}

		var shortage *repository.StockShortageError
		switch {
		case errors.As(err, &shortage):
			l.metrics.stockShortages.Add(ctx, 1, attrs)
			return 0, &InsufficientStockError{ProductID: productID, Requested: delta, Available: shortage.Available}
		case errors.Is(err, repository.ErrNotFound):
			return 0, &ProductNotFoundError{ProductID: productID}
		case !errors.Is(err, repository.ErrVersionConflict):
			return 0, fmt.Errorf("%s: product %d: %w", op, productID, err)
		}

		l.metrics.stockConflicts.Add(ctx, 1, attrs)
		if maxAttempts > 0 && attempt >= maxAttempts {
			l.metrics.stockExhausted.Add(ctx, 1, attrs)
			l.logger.Warn("stock adjustment gave up on version conflicts",
				zap.Int64("product_id", productID),
				zap.Int("delta", delta),
				zap.Int("attempts", attempt))
			return 0, &ConcurrencyConflictError{Entity: "product", EntityID: productID, Attempts: attempt}
		}
		if maxAttempts == 0 && attempt == l.cfg.MaxAttempts {
			l.logger.Warn("stock restore still conflicting, keep retrying",
				zap.Int64("product_id", productID),
				zap.Int("delta", delta),
				zap.Int("attempts", attempt))
		}

		// пауза растёт линейно только до MaxAttempts
		backoff := l.cfg.RetryBackoff * time.Duration(min(attempt, l.cfg.MaxAttempts))
		if err := l.cfg.Sleeper.Sleep(ctx, backoff); err != nil {
			return 0, fmt.Errorf("%s: product %d: %w", op, productID, err)
		}
	}
}

// Restock возвращает на склад quantity единиц товара
func (l *Ledger) Restock(ctx context.Context, productID int64, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: restock quantity must be positive, got %d", ErrInvalidQuantity, quantity)
	}
	return l.AdjustStock(ctx, productID, -quantity)
}

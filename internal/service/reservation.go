package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/authctx"
	"github.com/shestoi/stockflow/internal/repository"
)

// MaxItemQuantity верхняя граница количества в одной позиции или резерве
const MaxItemQuantity = 1000

// ReservationManager держит временные резервы остатка в рамках сессии клиента
// Резерв отражает уже выполненное списание через Ledger
type ReservationManager struct {
	ledger   *Ledger
	products repository.ProductRepository
	store    repository.ReservationStore
	logger   *zap.Logger
	metrics  *metrics

	now   func() time.Time
	newID func() string
}

// NewReservationManager создаёт ReservationManager
func NewReservationManager(
	ledger *Ledger,
	products repository.ProductRepository,
	store repository.ReservationStore,
	logger *zap.Logger,
) *ReservationManager {
	return &ReservationManager{
		ledger:   ledger,
		products: products,
		store:    store,
		logger:   logger,
		metrics:  newMetrics(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
}

// ReserveResult результат резервирования для обратной связи в UI
type ReserveResult struct {
	ReservationID  string
	ProductID      int64
	Quantity       int
	UnitPrice      decimal.Decimal
	StockRemaining int
}

// ValidateResult результат предварительной проверки
type ValidateResult struct {
	Available bool
	UnitPrice decimal.Decimal
}

// Reserve списывает quantity через Ledger и запоминает резерв в сессии из ctx
func (m *ReservationManager) Reserve(ctx context.Context, productID int64, quantity int) (ReserveResult, error) {
	sid, ok := authctx.SessionIDFromContext(ctx)
	if !ok {
		return ReserveResult{}, ErrSessionRequired
	}
	if err := validateQuantity(quantity); err != nil {
		return ReserveResult{}, err
	}

	product, err := m.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ReserveResult{}, &ProductNotFoundError{ProductID: productID}
		}
		return ReserveResult{}, fmt.Errorf("get product %d: %w", productID, err)
	}

	remaining, err := m.ledger.AdjustStock(ctx, productID, quantity)
	if err != nil {
		return ReserveResult{}, err
	}

	res := repository.Reservation{
		ID:        m.newID(),
		SessionID: sid,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: product.Price,
		CreatedAt: m.now(),
	}
	if err := m.store.Insert(ctx, res); err != nil {
		// резерв не сохранился, возвращаем списанное
		_, restoreErr := m.ledger.restore(ctx, productID, quantity)
		return ReserveResult{}, multierr.Append(fmt.Errorf("store reservation: %w", err), restoreErr)
	}

	m.metrics.reservation(ctx, "reserve")
	m.logger.Debug("stock reserved",
		zap.String("reservation_id", res.ID),
		zap.String("session_id", sid),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))

	return ReserveResult{
		ReservationID:  res.ID,
		ProductID:      productID,
		Quantity:       quantity,
		UnitPrice:      res.UnitPrice,
		StockRemaining: remaining,
	}, nil
}

// Get возвращает резерв текущей сессии
func (m *ReservationManager) Get(ctx context.Context, reservationID string) (repository.Reservation, error) {
	sid, ok := authctx.SessionIDFromContext(ctx)
	if !ok {
		return repository.Reservation{}, ErrSessionRequired
	}
	return m.store.Get(ctx, sid, reservationID)
}

// Release снимает резерв текущей сессии и возвращает остаток на склад
// Неизвестный или уже снятый резерв не ошибка: из гонки release остаток возвращается один раз
func (m *ReservationManager) Release(ctx context.Context, reservationID string) error {
	sid, ok := authctx.SessionIDFromContext(ctx)
	if !ok {
		return ErrSessionRequired
	}
	_, err := m.release(ctx, sid, reservationID)
	return err
}

func (m *ReservationManager) release(ctx context.Context, sid, reservationID string) (bool, error) {
	res, err := m.store.Take(ctx, sid, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("take reservation %s: %w", reservationID, err)
	}

	if _, err := m.ledger.AdjustStock(ctx, res.ProductID, -res.Quantity); err != nil {
		// остаток не вернулся, кладём резерв обратно, чтобы release можно было повторить
		putErr := m.store.Insert(context.WithoutCancel(ctx), res)
		return false, multierr.Append(fmt.Errorf("restore stock for reservation %s: %w", reservationID, err), putErr)
	}

	m.metrics.reservation(ctx, "release")
	m.logger.Debug("reservation released",
		zap.String("reservation_id", reservationID),
		zap.String("session_id", sid),
		zap.Int64("product_id", res.ProductID),
		zap.Int("quantity", res.Quantity))
	return true, nil
}

// Validate проверяет доступность без побочных эффектов
func (m *ReservationManager) Validate(ctx context.Context, productID int64, quantity int) (ValidateResult, error) {
	if err := validateQuantity(quantity); err != nil {
		return ValidateResult{}, err
	}

	product, err := m.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ValidateResult{}, &ProductNotFoundError{ProductID: productID}
		}
		return ValidateResult{}, fmt.Errorf("get product %d: %w", productID, err)
	}

	available, err := m.ledger.CheckAvailable(ctx, productID, quantity)
	if err != nil {
		return ValidateResult{}, err
	}
	return ValidateResult{Available: available, UnitPrice: product.Price}, nil
}

// ReleaseExpired снимает резервы всех сессий, созданные раньше cutoff
// Ошибка по одному резерву не останавливает остальные
func (m *ReservationManager) ReleaseExpired(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := m.store.ListCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}

	released := 0
	var errs error
	for _, res := range stale {
		if ctx.Err() != nil {
			return released, multierr.Append(errs, ctx.Err())
		}
		ok, err := m.release(ctx, res.SessionID, res.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			released++
		}
	}
	return released, errs
}

// consume забирает резерв сессии для оформления заказа без возврата остатка
// ok=false если сессии нет или резерв уже снят
func (m *ReservationManager) consume(ctx context.Context, reservationID string) (repository.Reservation, bool, error) {
	sid, ok := authctx.SessionIDFromContext(ctx)
	if !ok {
		return repository.Reservation{}, false, nil
	}
	res, err := m.store.Take(ctx, sid, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Reservation{}, false, nil
		}
		return repository.Reservation{}, false, fmt.Errorf("take reservation %s: %w", reservationID, err)
	}
	return res, true, nil
}

// putBack возвращает забранный резерв в сессию при откате оформления
func (m *ReservationManager) putBack(ctx context.Context, res repository.Reservation) error {
	if err := m.store.Insert(ctx, res); err != nil {
		return fmt.Errorf("put back reservation %s: %w", res.ID, err)
	}
	return nil
}

func validateQuantity(quantity int) error {
	if quantity < 1 || quantity > MaxItemQuantity {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidQuantity, MaxItemQuantity, quantity)
	}
	return nil
}

package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
	"github.com/shestoi/stockflow/internal/service"
)

// OrderFulfiller часть OrderService, нужная планировщику
type OrderFulfiller interface {
	ListOrdersByStatus(ctx context.Context, status repository.OrderStatus) ([]repository.Order, error)
	FulfillOrder(ctx context.Context, orderID int64) (repository.Order, error)
}

// FulfillmentConfig интервалы планировщика. Каждая пауза выбирается случайно из [Min, Max)
type FulfillmentConfig struct {
	IntervalMin   time.Duration
	IntervalMax   time.Duration
	ProcessingMin time.Duration
	ProcessingMax time.Duration
}

// FulfillmentScheduler в фоне переводит ожидающие заказы в fulfilled
// Гонку с отменой заказа разрешает OrderService: проигравший получает ошибку, она только логируется
type FulfillmentScheduler struct {
	orders  OrderFulfiller
	cfg     FulfillmentConfig
	sleeper service.Sleeper
	logger  *zap.Logger

	randDuration func(lo, hi time.Duration) time.Duration
}

// NewFulfillmentScheduler создаёт планировщик. sleeper == nil означает service.DefaultSleeper
func NewFulfillmentScheduler(orders OrderFulfiller, cfg FulfillmentConfig, sleeper service.Sleeper, logger *zap.Logger) *FulfillmentScheduler {
	if sleeper == nil {
		sleeper = service.DefaultSleeper{}
	}
	return &FulfillmentScheduler{
		orders:       orders,
		cfg:          cfg,
		sleeper:      sleeper,
		logger:       logger,
		randDuration: randDuration,
	}
}

// Run крутит циклы до отмены ctx и тогда возвращает nil
func (s *FulfillmentScheduler) Run(ctx context.Context) error {
	s.logger.Info("starting fulfillment scheduler",
		zap.Duration("interval_min", s.cfg.IntervalMin),
		zap.Duration("interval_max", s.cfg.IntervalMax),
		zap.Duration("processing_min", s.cfg.ProcessingMin),
		zap.Duration("processing_max", s.cfg.ProcessingMax),
	)

	for {
		s.RunCycle(ctx)

		if err := s.sleeper.Sleep(ctx, s.randDuration(s.cfg.IntervalMin, s.cfg.IntervalMax)); err != nil {
			s.logger.Info("fulfillment scheduler stopped")
			return nil
		}
	}
}

// RunCycle обрабатывает текущие pending_fulfillment заказы и возвращает число выполненных
// Ошибка по одному заказу не прерывает цикл
func (s *FulfillmentScheduler) RunCycle(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	pending, err := s.orders.ListOrdersByStatus(ctx, repository.OrderStatusPendingFulfillment)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to list pending orders", zap.Error(err))
		}
		return 0
	}
	if len(pending) == 0 {
		return 0
	}
	s.logger.Debug("processing pending orders", zap.Int("count", len(pending)))

	fulfilled := 0
	for _, order := range pending {
		// имитация подготовки заказа к отгрузке
		if err := s.sleeper.Sleep(ctx, s.randDuration(s.cfg.ProcessingMin, s.cfg.ProcessingMax)); err != nil {
			return fulfilled
		}

		_, err := s.orders.FulfillOrder(ctx, order.ID)
		if s.logOutcome(ctx, order.ID, err) {
			fulfilled++
		}
	}
	return fulfilled
}

// logOutcome пишет результат FulfillOrder и сообщает, перешёл ли заказ в fulfilled
func (s *FulfillmentScheduler) logOutcome(ctx context.Context, orderID int64, err error) bool {
	var (
		invalid  *service.InvalidTransitionError
		conflict *service.ConcurrencyConflictError
		notify   *service.NotificationError
	)
	switch {
	case err == nil:
		s.logger.Info("order fulfilled by scheduler", zap.Int64("order_id", orderID))
		return true
	case errors.As(err, &notify):
		s.logger.Warn("order fulfilled, notification failed", zap.Int64("order_id", orderID), zap.Error(err))
		return true
	case errors.As(err, &invalid), errors.As(err, &conflict):
		// заказ успели отменить или изменить параллельно
		s.logger.Info("order skipped by scheduler", zap.Int64("order_id", orderID), zap.Error(err))
	case ctx.Err() != nil:
	default:
		s.logger.Error("failed to fulfill order", zap.Int64("order_id", orderID), zap.Error(err))
	}
	return false
}

func randDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredReleaser часть ReservationManager, нужная sweeper'у
type ExpiredReleaser interface {
	ReleaseExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// ReservationSweeper периодически снимает резервы старше TTL и возвращает остаток на склад
type ReservationSweeper struct {
	reservations ExpiredReleaser
	ttl          time.Duration
	interval     time.Duration
	logger       *zap.Logger

	now func() time.Time
}

// NewReservationSweeper создаёт sweeper
func NewReservationSweeper(reservations ExpiredReleaser, ttl, interval time.Duration, logger *zap.Logger) *ReservationSweeper {
	return &ReservationSweeper{
		reservations: reservations,
		ttl:          ttl,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Run снимает просроченные резервы раз в interval до отмены ctx
func (s *ReservationSweeper) Run(ctx context.Context) error {
	s.logger.Info("starting reservation sweeper",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reservation sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep выполняет один проход и возвращает число снятых резервов
func (s *ReservationSweeper) Sweep(ctx context.Context) int {
	released, err := s.reservations.ReleaseExpired(ctx, s.now().Add(-s.ttl))
	if err != nil && ctx.Err() == nil {
		s.logger.Error("failed to release expired reservations", zap.Int("released", released), zap.Error(err))
	}
	if released > 0 {
		s.logger.Info("expired reservations released", zap.Int("released", released))
	}
	return released
}

package service

import (
	"context"
	"time"

	"github.com/shestoi/stockflow/internal/repository"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Notifier --dir=. --output=./mocks --outpkg=mocks

// Notifier сообщает внешнему миру о выполненном заказе
// Реализации: лог (event/log) и Kafka (event/kafka)
type Notifier interface {
	// NotifyFulfilled вызывается после фиксации статуса fulfilled
	NotifyFulfilled(ctx context.Context, order repository.Order) error
}

// Sleeper определяет интерфейс для задержки (используется для тестирования)
type Sleeper interface {
	// Sleep выполняет задержку на указанное время или до отмены контекста
	Sleep(ctx context.Context, d time.Duration) error
}

// DefaultSleeper реализует Sleeper через таймер
type DefaultSleeper struct{}

// Sleep ждёт d или отмены ctx
func (DefaultSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

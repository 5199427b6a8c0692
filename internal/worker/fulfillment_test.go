package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
	"github.com/shestoi/stockflow/internal/repository/memory"
	"github.com/shestoi/stockflow/internal/service"
)

// scriptedSleeper возвращает ошибку отмены после stopAfter пауз
type scriptedSleeper struct {
	mu        sync.Mutex
	calls     []time.Duration
	stopAfter int
	cancel    context.CancelFunc
}

func (s *scriptedSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	n := len(s.calls)
	s.mu.Unlock()

	if s.stopAfter > 0 && n >= s.stopAfter {
		s.cancel()
	}
	return ctx.Err()
}

// fakeFulfiller возвращает заранее заданные ошибки по ID заказа
type fakeFulfiller struct {
	mu        sync.Mutex
	pending   []repository.Order
	listErr   error
	errs      map[int64]error
	fulfilled []int64
}

func (f *fakeFulfiller) ListOrdersByStatus(ctx context.Context, status repository.OrderStatus) ([]repository.Order, error) {
	return f.pending, f.listErr
}

func (f *fakeFulfiller) FulfillOrder(ctx context.Context, orderID int64) (repository.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fulfilled = append(f.fulfilled, orderID)
	return repository.Order{ID: orderID}, f.errs[orderID]
}

func testConfig() FulfillmentConfig {
	return FulfillmentConfig{
		IntervalMin:   10 * time.Second,
		IntervalMax:   20 * time.Second,
		ProcessingMin: time.Second,
		ProcessingMax: 5 * time.Second,
	}
}

func TestFulfillmentScheduler_RunCycle_IsolatesFailures(t *testing.T) {
	// Arrange
	orders := &fakeFulfiller{
		pending: []repository.Order{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}},
		errs: map[int64]error{
			2: errors.New("db timeout"),
			3: &service.InvalidTransitionError{OrderID: 3, Current: repository.OrderStatusCanceled, Attempted: repository.OrderStatusFulfilled},
			4: &service.NotificationError{OrderID: 4, Err: errors.New("broker down")},
		},
	}
	sleeper := &scriptedSleeper{}
	s := NewFulfillmentScheduler(orders, testConfig(), sleeper, zap.NewNop())

	// Act
	n := s.RunCycle(context.Background())

	// Assert
	assert.Equal(t, 2, n, "order 1 and order 4 reached fulfilled")
	assert.Equal(t, []int64{1, 2, 3, 4}, orders.fulfilled)
	require.Len(t, sleeper.calls, 4)
	for _, d := range sleeper.calls {
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 5*time.Second)
	}
}

func TestFulfillmentScheduler_RunCycle_ListError(t *testing.T) {
	orders := &fakeFulfiller{listErr: errors.New("db down")}
	sleeper := &scriptedSleeper{}
	s := NewFulfillmentScheduler(orders, testConfig(), sleeper, zap.NewNop())

	assert.Zero(t, s.RunCycle(context.Background()))
	assert.Empty(t, orders.fulfilled)
	assert.Empty(t, sleeper.calls)
}

func TestFulfillmentScheduler_Run_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders := &fakeFulfiller{pending: []repository.Order{{ID: 1}, {ID: 2}}}
	// пауза обработки заказа 1 проходит, на паузе заказа 2 контекст отменяется
	sleeper := &scriptedSleeper{stopAfter: 2, cancel: cancel}
	s := NewFulfillmentScheduler(orders, testConfig(), sleeper, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, []int64{1}, orders.fulfilled)
}

func TestFulfillmentScheduler_Run_WaitsBetweenCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders := &fakeFulfiller{}
	sleeper := &scriptedSleeper{stopAfter: 3, cancel: cancel}
	s := NewFulfillmentScheduler(orders, testConfig(), sleeper, zap.NewNop())

	require.NoError(t, s.Run(ctx))

	require.Len(t, sleeper.calls, 3)
	for _, d := range sleeper.calls {
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.Less(t, d, 20*time.Second)
	}
}

func TestFulfillmentScheduler_WithOrderService(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()
	products := memory.NewProductRepository()
	orders := memory.NewOrderRepository()
	p, err := products.Add(ctx, repository.Product{Name: "Laptop", Price: decimal.NewFromInt(1200), StockQuantity: 10})
	require.NoError(t, err)

	ledger := service.NewLedger(products, service.LedgerConfig{}, log)
	reservations := service.NewReservationManager(ledger, products, memory.NewReservationStore(), log)
	svc := service.NewOrderService(orders, products, ledger, reservations, nopNotifier{}, log)

	keep, err := svc.PlaceOrder(ctx, []repository.OrderItem{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	canceled, err := svc.PlaceOrder(ctx, []repository.OrderItem{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = svc.CancelOrder(ctx, canceled.ID)
	require.NoError(t, err)

	s := NewFulfillmentScheduler(svc, testConfig(), &scriptedSleeper{}, log)
	assert.Equal(t, 1, s.RunCycle(ctx))

	got, err := svc.GetOrder(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderStatusFulfilled, got.Status)

	got, err = svc.GetOrder(ctx, canceled.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderStatusCanceled, got.Status)
}

type nopNotifier struct{}

func (nopNotifier) NotifyFulfilled(context.Context, repository.Order) error { return nil }

func TestRandDuration(t *testing.T) {
	assert.Equal(t, time.Second, randDuration(time.Second, time.Second))
	assert.Equal(t, time.Second, randDuration(time.Second, 0))
	for i := 0; i < 100; i++ {
		d := randDuration(10*time.Second, 20*time.Second)
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.Less(t, d, 20*time.Second)
	}
}

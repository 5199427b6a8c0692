package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/authctx"
	"github.com/shestoi/stockflow/internal/repository"
	"github.com/shestoi/stockflow/internal/repository/memory"
)

// fakeSleeper запоминает запрошенные паузы и не ждёт
type fakeSleeper struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

// recordingNotifier собирает уведомления
type recordingNotifier struct {
	mu       sync.Mutex
	notified []int64
	err      error
}

func (n *recordingNotifier) NotifyFulfilled(ctx context.Context, order repository.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, order.ID)
	return n.err
}

// fixture собирает сервисы на in-memory хранилищах
type fixture struct {
	products     *memory.ProductRepository
	orders       *memory.OrderRepository
	store        *memory.ReservationStore
	notifier     *recordingNotifier
	ledger       *Ledger
	reservations *ReservationManager
	orderSvc     *OrderService
	catalog      *CatalogService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		products: memory.NewProductRepository(),
		orders:   memory.NewOrderRepository(),
		store:    memory.NewReservationStore(),
		notifier: &recordingNotifier{},
	}
	log := zap.NewNop()
	f.ledger = NewLedger(f.products, LedgerConfig{MaxAttempts: 50, RetryBackoff: time.Microsecond}, log)
	f.reservations = NewReservationManager(f.ledger, f.products, f.store, log)
	f.orderSvc = NewOrderService(f.orders, f.products, f.ledger, f.reservations, f.notifier, log)
	f.catalog = NewCatalogService(f.products, f.orders, f.ledger, log)
	return f
}

func (f *fixture) addProduct(t *testing.T, name string, price int64, stock int) repository.Product {
	t.Helper()
	p, err := f.products.Add(context.Background(), repository.Product{
		Name:          name,
		Price:         decimal.NewFromInt(price),
		StockQuantity: stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func sessionCtx(sid string) context.Context {
	return authctx.WithSessionID(context.Background(), sid)
}

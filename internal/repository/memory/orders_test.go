package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/stockflow/internal/repository"
)

func TestOrderRepository_AddAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()

	order, err := repo.Add(ctx, repository.Order{
		Status: repository.OrderStatusPendingFulfillment,
		Items: []repository.OrderItem{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(1200), ReservationID: "r-1"},
			{ProductID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(800)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, int64(1), order.Version)
	assert.False(t, order.CreatedAt.IsZero())
	require.Len(t, order.Items, 2)
	assert.Equal(t, order.ID, order.Items[0].OrderID)
	assert.NotZero(t, order.Items[0].ID)
	assert.Empty(t, order.Items[0].ReservationID, "reservation id is not persisted")

	// изменение возвращённого slice не затрагивает хранилище
	order.Items[0].Quantity = 100
	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Items[0].Quantity)

	_, err = repo.GetByID(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOrderRepository_UpdateCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()

	order, err := repo.Add(ctx, repository.Order{Status: repository.OrderStatusPendingFulfillment})
	require.NoError(t, err)

	first := order
	first.Status = repository.OrderStatusFulfilled
	updated, err := repo.Update(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	// второй писатель прочитал ту же версию
	second := order
	second.Status = repository.OrderStatusCanceled
	_, err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderStatusFulfilled, got.Status)

	_, err = repo.Update(ctx, repository.Order{ID: 99, Version: 1})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOrderRepository_GetByStatusAndHasProduct(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, st := range []repository.OrderStatus{
		repository.OrderStatusPendingFulfillment,
		repository.OrderStatusCanceled,
		repository.OrderStatusPendingFulfillment,
	} {
		_, err := repo.Add(ctx, repository.Order{
			Status:    st,
			CreatedAt: base.Add(time.Duration(3-i) * time.Minute),
			Items:     []repository.OrderItem{{ProductID: int64(i + 1), Quantity: 1}},
		})
		require.NoError(t, err)
	}

	pending, err := repo.GetByStatus(ctx, repository.OrderStatusPendingFulfillment)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// от старых к новым
	assert.Equal(t, int64(3), pending[0].ID)
	assert.Equal(t, int64(1), pending[1].ID)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	used, err := repo.HasProduct(ctx, 2)
	require.NoError(t, err)
	assert.True(t, used)

	used, err = repo.HasProduct(ctx, 7)
	require.NoError(t, err)
	assert.False(t, used)
}

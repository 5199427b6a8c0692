//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib" //для goose миграций

	"github.com/shestoi/stockflow/internal/repository"
	"github.com/shestoi/stockflow/migrations"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("stockflow"),
		postgres.WithUsername("stockflow"),
		postgres.WithPassword("stockflow"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	// Ждём готовности БД через ping с retry
	var pingErr error
	for i := 0; i < 10; i++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, pingErr, "Failed to ping database after retries")

	require.NoError(t, migrations.Up(ctx, db), "Failed to run migrations")

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestRepositories_Integration(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(t)
	products := NewProductRepository(pool)
	orders := NewOrderRepository(pool)

	laptop, err := products.Add(ctx, repository.Product{Name: "Laptop", Price: decimal.RequireFromString("1200.50"), StockQuantity: 10})
	require.NoError(t, err)

	t.Run("product round trip keeps price precision", func(t *testing.T) {
		got, err := products.GetByID(ctx, laptop.ID)
		require.NoError(t, err)
		assert.Equal(t, "Laptop", got.Name)
		assert.True(t, decimal.RequireFromString("1200.50").Equal(got.Price))
		assert.Equal(t, int64(1), got.Version)

		_, err = products.GetByID(ctx, 999999)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("product update compares version", func(t *testing.T) {
		current, err := products.GetByID(ctx, laptop.ID)
		require.NoError(t, err)

		current.Name = "Laptop Pro"
		updated, err := products.Update(ctx, current)
		require.NoError(t, err)
		assert.Equal(t, current.Version+1, updated.Version)

		_, err = products.Update(ctx, current)
		assert.ErrorIs(t, err, repository.ErrVersionConflict)

		_, err = products.Update(ctx, repository.Product{ID: 999999, Name: "x", Price: decimal.NewFromInt(1), Version: 1})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("adjust stock", func(t *testing.T) {
		qty, err := products.AdjustStock(ctx, laptop.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, 7, qty)

		_, err = products.AdjustStock(ctx, laptop.ID, 8)
		var shortage *repository.StockShortageError
		require.True(t, errors.As(err, &shortage))
		assert.Equal(t, 7, shortage.Available)

		ok, err := products.CheckStock(ctx, laptop.ID, 7)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = products.AdjustStock(ctx, 999999, 1)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("concurrent adjustments never go negative", func(t *testing.T) {
		p, err := products.Add(ctx, repository.Product{Name: "Tablet", Price: decimal.NewFromInt(400), StockQuantity: 5})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = products.AdjustStock(ctx, p.ID, 1)
			}()
		}
		wg.Wait()

		got, err := products.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.StockQuantity, 0)
		assert.Equal(t, int64(1+5-got.StockQuantity), got.Version)
	})

	t.Run("order lifecycle", func(t *testing.T) {
		order, err := orders.Add(ctx, repository.Order{
			Status: repository.OrderStatusPendingFulfillment,
			Items: []repository.OrderItem{
				{ProductID: laptop.ID, Quantity: 2, UnitPrice: decimal.RequireFromString("1200.50")},
			},
		})
		require.NoError(t, err)
		assert.NotZero(t, order.ID)
		assert.Equal(t, int64(1), order.Version)
		require.Len(t, order.Items, 1)

		got, err := orders.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, repository.OrderStatusPendingFulfillment, got.Status)
		require.Len(t, got.Items, 1)
		assert.True(t, decimal.RequireFromString("1200.50").Equal(got.Items[0].UnitPrice))

		pending, err := orders.GetByStatus(ctx, repository.OrderStatusPendingFulfillment)
		require.NoError(t, err)
		assert.NotEmpty(t, pending)

		got.Status = repository.OrderStatusFulfilled
		updated, err := orders.Update(ctx, got)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		// второй писатель со старой версией проигрывает
		got.Status = repository.OrderStatusCanceled
		got.Version = 1
		_, err = orders.Update(ctx, got)
		assert.ErrorIs(t, err, repository.ErrVersionConflict)

		used, err := orders.HasProduct(ctx, laptop.ID)
		require.NoError(t, err)
		assert.True(t, used)

		_, err = orders.GetByID(ctx, 999999)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		_, err = orders.Update(ctx, repository.Order{ID: 999999, Status: repository.OrderStatusCanceled, Version: 1})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("delete product", func(t *testing.T) {
		p, err := products.Add(ctx, repository.Product{Name: "Headphones", Price: decimal.NewFromInt(150), StockQuantity: 30})
		require.NoError(t, err)

		require.NoError(t, products.Delete(ctx, p.ID))
		assert.ErrorIs(t, products.Delete(ctx, p.ID), repository.ErrNotFound)
	})
}

//go:build integration

package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	tc "github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/shestoi/stockflow/internal/repository"
)

func setupStore(t *testing.T) *ReservationStore {
	t.Helper()
	ctx := context.Background()

	redisC, err := tcredis.RunContainer(ctx, tc.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, redisC.Terminate(context.Background())) })

	uri, err := redisC.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	var pingErr error
	for i := 0; i < 20; i++ {
		if pingErr = client.Ping(ctx).Err(); pingErr == nil {
			break
		}
		time.Sleep(250 * time.Millisecond)
	}
	require.NoError(t, pingErr, "Redis did not become ready in time")

	return NewReservationStore(client, zap.NewNop())
}

func TestReservationStore_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	old := repository.Reservation{
		ID: "r-old", SessionID: "s1", ProductID: 1, Quantity: 2,
		UnitPrice: decimal.RequireFromString("19.99"), CreatedAt: now.Add(-time.Hour),
	}
	fresh := repository.Reservation{
		ID: "r-fresh", SessionID: "s2", ProductID: 2, Quantity: 1,
		UnitPrice: decimal.NewFromInt(5), CreatedAt: now,
	}
	require.NoError(t, store.Insert(ctx, old))
	require.NoError(t, store.Insert(ctx, fresh))

	t.Run("get is scoped by session", func(t *testing.T) {
		got, err := store.Get(ctx, "s1", "r-old")
		require.NoError(t, err)
		assert.Equal(t, old.ProductID, got.ProductID)
		assert.True(t, old.UnitPrice.Equal(got.UnitPrice))
		assert.True(t, old.CreatedAt.Equal(got.CreatedAt))

		_, err = store.Get(ctx, "s2", "r-old")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("list created before cutoff", func(t *testing.T) {
		list, err := store.ListCreatedBefore(ctx, now.Add(-time.Minute))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "r-old", list[0].ID)
		assert.Equal(t, "s1", list[0].SessionID)
	})

	t.Run("concurrent take hands out reservation once", func(t *testing.T) {
		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Take(ctx, "s2", "r-fresh"); err == nil {
					won.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), won.Load())

		_, err := store.Get(ctx, "s2", "r-fresh")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("taken reservation leaves index", func(t *testing.T) {
		_, err := store.Take(ctx, "s1", "r-old")
		require.NoError(t, err)

		list, err := store.ListCreatedBefore(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("orphan index entry is dropped", func(t *testing.T) {
		require.NoError(t, store.client.ZAdd(ctx, indexKey, redis.Z{
			Score:  score(now.Add(-time.Hour)),
			Member: indexMember("s3", "r-orphan"),
		}).Err())

		list, err := store.ListCreatedBefore(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, list)

		err = store.client.ZScore(ctx, indexKey, indexMember("s3", "r-orphan")).Err()
		assert.ErrorIs(t, err, redis.Nil)
	})

	t.Run("index entry of reservation put back is kept", func(t *testing.T) {
		back := repository.Reservation{
			ID: "r-back", SessionID: "s4", ProductID: 1, Quantity: 1,
			UnitPrice: decimal.NewFromInt(3), CreatedAt: now.Add(-time.Hour),
		}
		require.NoError(t, store.Insert(ctx, back))

		// резерв вернулся между HGET и очисткой индекса
		removed, err := dropStaleScript.Run(ctx, store.client,
			[]string{indexKey, sessionKey("s4")},
			indexMember("s4", "r-back"), "r-back").Int()
		require.NoError(t, err)
		assert.Zero(t, removed)

		list, err := store.ListCreatedBefore(ctx, now)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "r-back", list[0].ID)
	})
}

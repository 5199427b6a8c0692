package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/stockflow/internal/repository"
)

func TestReservationStore_InsertGetTake(t *testing.T) {
	ctx := context.Background()
	store := NewReservationStore()

	res := repository.Reservation{ID: "r-1", SessionID: "s-1", ProductID: 1, Quantity: 2, CreatedAt: time.Now()}
	require.NoError(t, store.Insert(ctx, res))

	got, err := store.Get(ctx, "s-1", "r-1")
	require.NoError(t, err)
	assert.Equal(t, res, got)

	// резерв другой сессии не виден
	_, err = store.Get(ctx, "s-2", "r-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	taken, err := store.Take(ctx, "s-1", "r-1")
	require.NoError(t, err)
	assert.Equal(t, res, taken)

	_, err = store.Take(ctx, "s-1", "r-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReservationStore_TakeIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewReservationStore()
	require.NoError(t, store.Insert(ctx, repository.Reservation{ID: "r-1", SessionID: "s-1", Quantity: 1}))

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Take(ctx, "s-1", "r-1"); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestReservationStore_ListCreatedBefore(t *testing.T) {
	ctx := context.Background()
	store := NewReservationStore()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, repository.Reservation{ID: "old-2", SessionID: "s-2", CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Insert(ctx, repository.Reservation{ID: "old-1", SessionID: "s-1", CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, store.Insert(ctx, repository.Reservation{ID: "fresh", SessionID: "s-1", CreatedAt: now}))

	stale, err := store.ListCreatedBefore(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "old-1", stale[0].ID)
	assert.Equal(t, "old-2", stale[1].ID)
}

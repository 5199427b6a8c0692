package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/stockflow/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		AppEnv:                   config.EnvLocal,
		HTTPAddr:                 "127.0.0.1:0",
		LogLevel:                 "error",
		ShutdownTimeout:          time.Second,
		StorageDriver:            config.StorageMemory,
		ProductStore:             config.ProductStoreSame,
		ReservationStore:         config.ReservationStoreMemory,
		Notifier:                 config.NotifierLog,
		StockAdjustMaxAttempts:   5,
		StockAdjustRetryBackoff:  time.Millisecond,
		FulfillmentEnabled:       true,
		FulfillmentIntervalMin:   time.Hour,
		FulfillmentIntervalMax:   2 * time.Hour,
		ReservationTTL:           time.Minute,
		ReservationSweepInterval: time.Hour,
		SeedCatalog:              true,
	}
}

func TestBuildAndRun_InMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	a, err := Build(ctx, memoryConfig())
	require.NoError(t, err)
	assert.Len(t, a.workers, 2)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBuild_PostgresUnavailable(t *testing.T) {
	cfg := memoryConfig()
	cfg.StorageDriver = config.StoragePostgres
	cfg.PostgresDSN = "postgres://u:p@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"

	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}

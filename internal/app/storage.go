package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" //драйвер pgx для goose
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/config"
	"github.com/shestoi/stockflow/internal/repository"
	"github.com/shestoi/stockflow/internal/repository/memory"
	mongostore "github.com/shestoi/stockflow/internal/repository/mongo"
	pgstore "github.com/shestoi/stockflow/internal/repository/postgres"
	redisstore "github.com/shestoi/stockflow/internal/repository/redis"
	"github.com/shestoi/stockflow/migrations"
	platformhealth "github.com/shestoi/stockflow/platform/health/http"
	platformshutdown "github.com/shestoi/stockflow/platform/shutdown"
)

const connectTimeout = 5 * time.Second

// stores выбранные по конфигу хранилища и проверки их готовности
type stores struct {
	products     repository.ProductRepository
	orders       repository.OrderRepository
	reservations repository.ReservationStore
	checks       map[string]platformhealth.Check
}

// openStores подключает хранилища и регистрирует их закрытие в shutdownMgr
func openStores(ctx context.Context, cfg config.Config, shutdownMgr *platformshutdown.Manager, logger *zap.Logger) (*stores, error) {
	s := &stores{checks: make(map[string]platformhealth.Check)}

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := openPostgres(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
		s.checks["postgres"] = pool.Ping
		s.products = pgstore.NewProductRepository(pool)
		s.orders = pgstore.NewOrderRepository(pool)
	default:
		s.products = memory.NewProductRepository()
		s.orders = memory.NewOrderRepository()
	}

	if cfg.ProductStore == config.ProductStoreMongo {
		logger.Info("Connecting to MongoDB", zap.String("db", cfg.MongoDB))
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		client, err := mongo.Connect(connCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		// Проверяем подключение к MongoDB
		if err := client.Ping(connCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		logger.Info("MongoDB connection established")

		shutdownMgr.Add("mongo_client", platformshutdown.DisconnectMongo(client))
		s.checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		s.products = mongostore.NewProductRepository(client, cfg.MongoDB)
	}

	switch cfg.ReservationStore {
	case config.ReservationStoreRedis:
		logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})

		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("Redis connection established")

		shutdownMgr.Add("redis_client", platformshutdown.Close(client))
		s.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		s.reservations = redisstore.NewReservationStore(client, logger)
	default:
		s.reservations = memory.NewReservationStore()
	}

	return s, nil
}

// openPostgres применяет миграции и открывает пул
func openPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	logger.Info("Applying PostgreSQL migrations")
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open migrations db: %w", err)
	}
	defer db.Close()

	if err := migrations.Up(ctx, db); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("Connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connection established")
	return pool, nil
}

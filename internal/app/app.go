package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	httpapi "github.com/shestoi/stockflow/internal/api/http"
	"github.com/shestoi/stockflow/internal/config"
	eventkafka "github.com/shestoi/stockflow/internal/event/kafka"
	eventlog "github.com/shestoi/stockflow/internal/event/log"
	"github.com/shestoi/stockflow/internal/service"
	"github.com/shestoi/stockflow/internal/worker"
	platformhealth "github.com/shestoi/stockflow/platform/health/http"
	platformkafka "github.com/shestoi/stockflow/platform/kafka"
	platformlogging "github.com/shestoi/stockflow/platform/logging"
	platformobservability "github.com/shestoi/stockflow/platform/observability"
	platformshutdown "github.com/shestoi/stockflow/platform/shutdown"
)

const serviceName = "stockflow"

// App содержит все зависимости для запуска и корректного shutdown stockflow
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	shutdownMgr *platformshutdown.Manager
	workers     []backgroundWorker

	wg           sync.WaitGroup
	cancelWorker context.CancelFunc
}

type backgroundWorker struct {
	name string
	run  func(ctx context.Context) error
}

// Build создаёт и настраивает все зависимости stockflow
// При ошибке уже открытые ресурсы закрываются
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	const op = "app.Build"

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: serviceName,
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: logger: %w", op, err)
	}
	cfg.Log(logger)

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	a := &App{logger: logger, shutdownMgr: shutdownMgr}

	if err := a.build(ctx, cfg); err != nil {
		if shutdownErr := shutdownMgr.Shutdown(); shutdownErr != nil {
			logger.Error("cleanup after failed build", zap.Error(shutdownErr))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg config.Config) error {
	logger := a.logger

	otelShutdown, err := platformobservability.Init(ctx, platformobservability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           serviceName,
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	a.shutdownMgr.Add("otel", otelShutdown)

	st, err := openStores(ctx, cfg, a.shutdownMgr, logger)
	if err != nil {
		return err
	}

	notifier, err := a.buildNotifier(cfg)
	if err != nil {
		return err
	}

	// Создаем service слой с зависимостями
	ledger := service.NewLedger(st.products, service.LedgerConfig{
		MaxAttempts:  cfg.StockAdjustMaxAttempts,
		RetryBackoff: cfg.StockAdjustRetryBackoff,
	}, logger)
	reservations := service.NewReservationManager(ledger, st.products, st.reservations, logger)
	orders := service.NewOrderService(st.orders, st.products, ledger, reservations, notifier, logger)
	catalog := service.NewCatalogService(st.products, st.orders, ledger, logger)

	if cfg.SeedCatalog {
		n, err := catalog.SeedProducts(ctx)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		if n > 0 {
			logger.Info("Catalog seeded", zap.Int("products", n))
		}
	}

	if cfg.FulfillmentEnabled {
		scheduler := worker.NewFulfillmentScheduler(orders, worker.FulfillmentConfig{
			IntervalMin:   cfg.FulfillmentIntervalMin,
			IntervalMax:   cfg.FulfillmentIntervalMax,
			ProcessingMin: cfg.FulfillmentProcessingMin,
			ProcessingMax: cfg.FulfillmentProcessingMax,
		}, nil, logger)
		a.workers = append(a.workers, backgroundWorker{name: "fulfillment_scheduler", run: scheduler.Run})
	}
	if cfg.ReservationTTL > 0 {
		sweeper := worker.NewReservationSweeper(reservations, cfg.ReservationTTL, cfg.ReservationSweepInterval, logger)
		a.workers = append(a.workers, backgroundWorker{name: "reservation_sweeper", run: sweeper.Run})
	}
	a.shutdownMgr.Add("workers", a.stopWorkers)

	// Создаем HTTP handler и роутер
	handler := httpapi.NewHandler(catalog, reservations, orders, logger)
	health := platformhealth.Handler(2*time.Second, st.checks)
	router := httpapi.NewRouter(handler, health, logger)

	a.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	// HTTP сервер останавливается первым
	a.shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(a.httpServer))
	return nil
}

func (a *App) buildNotifier(cfg config.Config) (service.Notifier, error) {
	if cfg.Notifier != config.NotifierKafka {
		return eventlog.NewNotifier(a.logger), nil
	}

	writer := platformkafka.NewWriter(cfg.Kafka, cfg.OrderFulfilledTopic)
	publisher := eventkafka.NewFulfilledPublisher(a.logger, writer, cfg.OrderFulfilledTopic)
	a.shutdownMgr.Add("kafka_writer", platformshutdown.Close(publisher))
	a.logger.Info("Kafka notifier enabled",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.OrderFulfilledTopic))
	return publisher, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown или отмены ctx
func (a *App) Run(ctx context.Context) error {
	defer platformlogging.Sync(a.logger)

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancelWorker = cancel
	for _, w := range a.workers {
		a.wg.Add(1)
		go func(w backgroundWorker) {
			defer a.wg.Done()
			if err := w.run(workerCtx); err != nil {
				a.logger.Error("Background worker stopped with error", zap.String("worker", w.name), zap.Error(err))
			}
		}(w)
	}

	a.logger.Info("Starting stockflow", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	serverErr := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	waitCtx, stopWait := context.WithCancel(ctx)
	defer stopWait()
	go func() {
		// сервер упал сам: запускаем shutdown без сигнала
		if err, ok := <-serverErr; ok {
			a.logger.Error("HTTP server error", zap.Error(err))
			stopWait()
		}
	}()

	// Ожидаем сигнал и выполняем shutdown
	err := a.shutdownMgr.Wait(waitCtx)
	a.logger.Info("stockflow stopped")
	return err
}

// stopWorkers отменяет фоновые воркеры и ждёт их завершения не дольше ctx
func (a *App) stopWorkers(ctx context.Context) error {
	if a.cancelWorker != nil {
		a.cancelWorker()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workers did not stop: %w", ctx.Err())
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shopbee/order-service/internal/config"
	kafkax "github.com/shopbee/order-service/internal/kafka"
	"github.com/shopbee/order-service/internal/logging"
	"github.com/shopbee/order-service/internal/observability"
	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/postgres"
	"github.com/shopbee/order-service/internal/redisx"
)

// statusworker applies payment events to orders. It needs the shared
// Postgres database; the memory driver is meaningless across processes.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.StorageDriver != config.DriverPostgres {
		log.Fatalf("statusworker requires STORAGE_DRIVER=%s", config.DriverPostgres)
	}
	service := cfg.ServiceName + "-status-worker"
	logger, err := logging.New(cfg.LogLevel, service)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, service)
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	uow := &postgres.UnitOfWork{DB: db}

	// Redis holds the dedup keys and the order cache the API reads.
	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Status changes made here are announced on the same topic as the API's.
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, logger)
	prod.Start(ctx)

	orderSvc := orders.NewService(uow.Orders(), prod, logger, service,
		orders.WithCache(redisx.NewOrderCache(rdb, logger)))
	handler := orders.NewPaymentHandler(
		orders.NewAdminService(orderSvc),
		redisx.NewDeduper(rdb, service),
		logger,
	)

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.PaymentGroup, cfg.PaymentTopic, cfg.WorkerConcurrency, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("payment consumer started",
			zap.String("group", cfg.PaymentGroup),
			zap.String("topic", cfg.PaymentTopic),
			zap.Int("workers", cfg.WorkerConcurrency))
		if err := cons.Start(ctx, handler.HandleMessage); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	<-done
	prod.Close()
	prod.WaitClosed()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := shutdownTracing(ctx2); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shopbee/order-service/internal/config"
	"github.com/shopbee/order-service/internal/httpx"
	"github.com/shopbee/order-service/internal/inventory"
	kafkax "github.com/shopbee/order-service/internal/kafka"
	"github.com/shopbee/order-service/internal/logging"
	"github.com/shopbee/order-service/internal/memstore"
	"github.com/shopbee/order-service/internal/observability"
	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/postgres"
	"github.com/shopbee/order-service/internal/redisx"
	"github.com/shopbee/order-service/internal/tenant"
	"github.com/shopbee/order-service/internal/users"
)

// stores is implemented by *postgres.UnitOfWork and *memstore.Store.
type stores interface {
	Orders() orders.UnitOfWork
	Inventory() inventory.UnitOfWork
	Tenants() tenant.Store
	Users() users.UnitOfWork
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, cfg.ServiceName)
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}

	// Storage
	var st stores
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		st = memstore.New()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		st = &postgres.UnitOfWork{DB: db}
	}

	// Redis is optional: without it orders are served from storage only.
	var opts []orders.Option
	if cfg.RedisAddr != "" {
		rdb, err := redisx.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, order cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			opts = append(opts, orders.WithCache(redisx.NewOrderCache(rdb, logger)))
		}
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, logger)
	prod.Start(ctx)

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is not set, admin routes refuse every request")
	}
	orderSvc := orders.NewService(st.Orders(), prod, logger, cfg.ServiceName, opts...)
	router := httpx.NewRouter(httpx.Deps{
		Tenants:    tenant.NewService(st.Tenants(), logger),
		Products:   inventory.NewService(st.Inventory(), logger),
		Users:      users.NewService(st.Users(), logger),
		Orders:     orderSvc,
		Admin:      orders.NewAdminService(orderSvc),
		AdminToken: cfg.AdminToken,
		Logger:     logger,
		Timeout:    cfg.RequestTimeout,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		// Handlers still running past the deadline may publish after the
		// producer closes; those events are dropped and logged.
		logger.Warn("http shutdown incomplete", zap.Error(err))
		_ = srv.Close()
	}
	prod.Close() // flush queued events, then close the writer
	prod.WaitClosed()
	cancel()
	if err := shutdownTracing(ctx2); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
